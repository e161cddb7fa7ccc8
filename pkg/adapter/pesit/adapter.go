package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/cluster"
	"github.com/nexfin/pesitd/pkg/config"
	"github.com/nexfin/pesitd/pkg/metrics"
	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/registry"
	"github.com/nexfin/pesitd/pkg/secrets"
	"github.com/nexfin/pesitd/pkg/store"
	"github.com/nexfin/pesitd/pkg/transfer"
	"github.com/nexfin/pesitd/pkg/transport"
)

// Adapter runs the PeSIT Hors-SIT TCP accept loop (C9): one session task per
// accepted connection, up to Config.MaxConnections concurrent
// sessions, consulting Leader before accepting any connection at all (spec
// §6 "non-leader instances accept nothing").
type Adapter struct {
	Config   config.ServerConfig
	NodeID   string
	Leader   cluster.LeaderSignal
	Metrics  metrics.Recorder
	Registry *registry.Registry
	Store    store.Store
	Tracker  transfer.Tracker
	Secrets  secrets.Oracle

	listener net.Listener

	connSem   chan struct{}
	activeSes sync.WaitGroup
	connCount atomic.Int32
	connIDSeq atomic.Uint32

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New builds an Adapter from its wired dependencies. Metrics may be nil (a
// nil Recorder is a no-op, per pkg/metrics convention); the rest must be
// non-nil.
func New(cfg config.ServerConfig, nodeID string, leader cluster.LeaderSignal, m metrics.Recorder, reg *registry.Registry, st store.Store, tr transfer.Tracker, sec secrets.Oracle) *Adapter {
	var sem chan struct{}
	if cfg.MaxConnections > 0 {
		sem = make(chan struct{}, cfg.MaxConnections)
	}
	return &Adapter{
		Config:   cfg,
		NodeID:   nodeID,
		Leader:   leader,
		Metrics:  m,
		Registry: reg,
		Store:    st,
		Tracker:  tr,
		Secrets:  sec,
		connSem:  sem,
		shutdown: make(chan struct{}),
	}
}

// Serve runs the accept loop until ctx is cancelled or Stop is called.
func (a *Adapter) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.Config.Bind, a.Config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	a.listener = ln
	logger.Info("pesitd listening", "address", addr, "server_id", a.Config.ID)

	go func() {
		<-ctx.Done()
		a.initiateShutdown()
	}()

	for {
		if a.connSem != nil {
			select {
			case a.connSem <- struct{}{}:
			case <-a.shutdown:
				return a.drain()
			}
		}

		conn, err := a.listener.Accept()
		if err != nil {
			a.releaseSlot()
			select {
			case <-a.shutdown:
				return a.drain()
			default:
				logger.Warn("accept error", logger.KeyError, err)
				continue
			}
		}

		if !a.Leader.AmILeader() {
			logger.Debug("rejecting connection: not cluster leader", "remote", conn.RemoteAddr())
			_ = conn.Close()
			a.releaseSlot()
			if a.Metrics != nil {
				a.Metrics.RecordSessionRejected("not_leader")
			}
			continue
		}

		a.activeSes.Add(1)
		a.connCount.Add(1)
		if a.Metrics != nil {
			a.Metrics.RecordSessionAccepted()
			a.Metrics.SetActiveSessions(int(a.connCount.Load()))
		}

		go a.runSession(conn)
	}
}

func (a *Adapter) releaseSlot() {
	if a.connSem != nil {
		<-a.connSem
	}
}

func (a *Adapter) runSession(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panic recovered", logger.KeyRemoteAddr, conn.RemoteAddr(), "panic", r)
		}
		a.activeSes.Done()
		a.connCount.Add(-1)
		a.releaseSlot()
		if a.Metrics != nil {
			a.Metrics.RecordSessionClosed()
			a.Metrics.SetActiveSessions(int(a.connCount.Load()))
		}
	}()

	readTimeout := time.Duration(a.Config.ReadTimeoutMS) * time.Millisecond
	tc := transport.New(conn, readTimeout)

	sess := &Session{
		adapter: a,
		conn:    tc,
		ctx: &SessionContext{
			SessionID:       uuid.NewString(),
			RemoteAddr:      conn.RemoteAddr().String(),
			ServerID:        a.Config.ID,
			ServerConnID:    a.nextConnID(),
			ProtocolVersion: a.Config.ProtocolVersion,
			State:           pesit.CN01_REPOS,
		},
	}
	sess.serve()
}

func (a *Adapter) nextConnID() byte {
	n := a.connIDSeq.Add(1)
	return byte(1 + (n-1)%255)
}

func (a *Adapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
		if a.listener != nil {
			_ = a.listener.Close()
		}
	})
}

func (a *Adapter) drain() error {
	a.activeSes.Wait()
	return nil
}

// Stop initiates shutdown and waits (bounded by ctx) for in-flight sessions
// to finish.
func (a *Adapter) Stop(ctx context.Context) error {
	a.initiateShutdown()
	done := make(chan struct{})
	go func() {
		a.activeSes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveSessions returns the current number of live sessions.
func (a *Adapter) ActiveSessions() int32 { return a.connCount.Load() }
