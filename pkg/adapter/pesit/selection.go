package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/registry"
	"github.com/nexfin/pesitd/pkg/store"
	"github.com/nexfin/pesitd/pkg/transfer"
)

// handleCreate implements C4's CREATE handling: the peer intends to send us
// a file (spec §4.4).
func (s *Session) handleCreate(f pesit.FPDU) error {
	s.ctx.PeerConnID = f.IDSrc

	var virtual string
	if g, ok := f.Params.GetGroup(pesit.PGI_09); ok {
		p, ok := g.Get(pesit.PI_12)
		virtual = stringParam(p, ok, s.ctx.EBCDIC)
	}
	idParam, idOK := f.Params.Get(pesit.PI_13)
	peerID := stringParam(idParam, idOK, s.ctx.EBCDIC)
	restartFlag, _ := getUint8(f.Params, pesit.PI_15)
	peerMaxEntity, hasPeerMax := getUint32(f.Params, pesit.PI_25)
	fileSizeKB, _ := getUint32(f.Params, pesit.PI_42)

	var recordFormat byte
	var recordLength int
	if g, ok := f.Params.GetGroup(pesit.PGI_30); ok {
		if p, ok := g.Get(pesit.PI_31); ok {
			recordFormat, _ = p.Uint8()
		}
		if v, ok := getUint16FromGroup(g, pesit.PI_32); ok {
			recordLength = int(v)
		}
	}

	vf, found := s.adapter.Registry.VirtualFile(virtual)
	physical, resolveErr := s.resolveReceivePath(virtual, vf, found, peerID)
	if resolveErr != nil {
		return resolveErr
	}

	if err := s.adapter.Store.MkdirAll(context.Background(), dirOf(physical)); err != nil {
		return pesit.NewError(pesit.D2_211, fmt.Sprintf("create receive directory: %v", err))
	}

	maxEntity := s.ctx.MaxEntitySize
	if hasPeerMax && peerMaxEntity < maxEntity {
		maxEntity = peerMaxEntity
	}

	trackerID, err := s.adapter.Tracker.Create(context.Background(), s.ctx.SessionID, s.ctx.ServerID, s.adapter.NodeID, s.ctx.PartnerID, virtual, transfer.DirectionReceive, s.ctx.RemoteAddr)
	if err != nil {
		logger.Warn("tracker create failed", logger.KeyError, err)
	}

	s.ctx.Transfer = &TransferContext{
		TrackerID:             trackerID,
		PeerID:                peerID,
		Virtual:               virtual,
		Physical:              physical,
		Direction:             transfer.DirectionReceive,
		RecordFormat:          recordFormat,
		RecordLength:          recordLength,
		MaxEntity:             int(maxEntity),
		RestartFlag:           restartFlag != 0,
		FileSizeReservationKB: int64(fileSizeKB),
		StartedAt:             time.Now(),
	}

	if err := s.reply(pesit.ACK_CREATE, func(r *pesit.FPDU) {
		r.Params.AddUint32(pesit.PI_25, maxEntity)
	}); err != nil {
		return err
	}
	s.ctx.State = pesit.SF03_FILE_SELECTED
	return nil
}

// resolveReceivePath implements the virtual-file resolution rules of
// spec §4.4's CREATE handling.
func (s *Session) resolveReceivePath(virtual string, vf registry.VirtualFileRecord, found bool, peerID string) (string, error) {
	if found {
		if err := vf.CheckAccess(s.ctx.PartnerID, registry.AccessWrite); err != nil {
			return "", pesit.NewError(pesit.D2_226, err.Error())
		}
		name := registry.ExpandPattern(vf.FilenamePattern, registry.PatternContext{
			Partner: s.ctx.PartnerID, Virtual: virtual, TransferID: peerID,
		})
		return joinPath(vf.ReceiveDir, name), nil
	}
	if s.adapter.Registry.StrictFileCheck() {
		return "", pesit.NewError(pesit.D2_205, "unknown virtual file "+virtual)
	}
	return registry.DefaultReceivePath(s.adapter.Config.ReceiveDirectory, virtual, time.Time{}), nil
}

// handleSelect implements C4's SELECT handling: the peer asks us to send a
// file (spec §4.4).
func (s *Session) handleSelect(f pesit.FPDU) error {
	s.ctx.PeerConnID = f.IDSrc

	var virtual string
	if g, ok := f.Params.GetGroup(pesit.PGI_09); ok {
		p, ok := g.Get(pesit.PI_12)
		virtual = stringParam(p, ok, s.ctx.EBCDIC)
	}
	restartPoint, _ := getUint32(f.Params, pesit.PI_18)

	vf, found := s.adapter.Registry.VirtualFile(virtual)
	var physical string
	if found {
		if err := vf.CheckAccess(s.ctx.PartnerID, registry.AccessRead); err != nil {
			return pesit.NewError(pesit.D2_226, err.Error())
		}
		physical = joinPath(vf.SendDir, virtual)
	} else if s.adapter.Registry.StrictFileCheck() {
		return pesit.NewError(pesit.D2_205, "unknown virtual file "+virtual)
	} else {
		physical = joinPath(s.adapter.Config.SendDirectory, virtual)
	}

	ctx := context.Background()
	readable, err := s.adapter.Store.IsReadable(ctx, physical)
	if err != nil || !readable {
		return pesit.NewError(pesit.D2_205, "file not found or unreadable: "+virtual)
	}
	size, err := s.adapter.Store.Size(ctx, physical)
	if err != nil {
		return pesit.NewError(pesit.D2_211, fmt.Sprintf("stat file: %v", err))
	}

	trackerID, err := s.adapter.Tracker.Create(ctx, s.ctx.SessionID, s.ctx.ServerID, s.adapter.NodeID, s.ctx.PartnerID, virtual, transfer.DirectionSend, s.ctx.RemoteAddr)
	if err != nil {
		logger.Warn("tracker create failed", logger.KeyError, err)
	}

	s.ctx.Transfer = &TransferContext{
		TrackerID:    trackerID,
		Virtual:      virtual,
		Physical:     physical,
		Direction:    transfer.DirectionSend,
		MaxEntity:    int(s.ctx.MaxEntitySize),
		RestartPoint: restartPoint,
		SourceSize:   size,
		StartedAt:    time.Now(),
	}

	sizeKB := uint32((size + 1023) / 1024)
	if err := s.reply(pesit.ACK_SELECT, func(r *pesit.FPDU) {
		r.Params.AddGroup(pesit.Group{ID: pesit.PGI_40, Params: []pesit.Parameter{
			{ID: pesit.PI_42, Value: uint32Bytes(sizeKB)},
		}})
	}); err != nil {
		return err
	}
	s.ctx.State = pesit.SF03_FILE_SELECTED
	return nil
}

// handleOpen implements C4's OPEN handling. In receive direction the output
// stream is opened now so subsequent DTFs can stream straight to disk
// (spec §4.4, §9 "avoid in-memory buffering of the whole file").
func (s *Session) handleOpen(f pesit.FPDU) error {
	t := s.ctx.Transfer
	if t == nil {
		return pesit.NewError(pesit.D3_311, "OPEN with no selected file")
	}
	if comp, ok := getUint8(f.Params, pesit.PI_21); ok {
		t.Compression = comp != 0
	}

	ctx := context.Background()
	if t.Direction == transfer.DirectionReceive {
		appendMode := t.RestartFlag
		w, err := s.adapter.Store.Writer(ctx, t.Physical, appendMode)
		if err != nil {
			return mapStoreError(err)
		}
		t.Writer = w
		if err := s.adapter.Tracker.Start(ctx, t.TrackerID, 0, t.Physical); err != nil {
			logger.Warn("tracker start failed", logger.KeyError, err)
		}
		base := time.Duration(s.adapter.Config.ReadTimeoutMS) * time.Millisecond
		s.conn.SetReadTimeout(readTimeoutForSize(base, t.FileSizeReservationKB*1024))
	} else {
		r, err := s.adapter.Store.Reader(ctx, t.Physical, 0)
		if err != nil {
			return mapStoreError(err)
		}
		t.Reader = r
		if err := s.adapter.Tracker.Start(ctx, t.TrackerID, t.SourceSize, t.Physical); err != nil {
			logger.Warn("tracker start failed", logger.KeyError, err)
		}
		base := time.Duration(s.adapter.Config.ReadTimeoutMS) * time.Millisecond
		s.conn.SetReadTimeout(readTimeoutForSize(base, t.SourceSize))
	}

	if err := s.reply(pesit.ACK_OPEN, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.OF02_TRANSFER_READY
	return nil
}

// handleClose flushes and closes any open stream and returns to SF03.
func (s *Session) handleClose(f pesit.FPDU) error {
	if s.ctx.Transfer != nil {
		s.ctx.Transfer.Close()
	}
	s.conn.SetReadTimeout(time.Duration(s.adapter.Config.ReadTimeoutMS) * time.Millisecond)
	if err := s.reply(pesit.ACK_CLOSE, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.SF03_FILE_SELECTED
	return nil
}

// handleDeselect disposes the TransferContext and returns to CN03.
func (s *Session) handleDeselect(f pesit.FPDU) error {
	if s.ctx.Transfer != nil {
		s.ctx.Transfer.Close()
		s.ctx.Transfer = nil
	}
	if err := s.reply(pesit.ACK_DESELECT, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.CN03_CONNECTED
	return nil
}

func stringParam(p pesit.Parameter, ok bool, ebcdic ...bool) string {
	if !ok {
		return ""
	}
	e := false
	if len(ebcdic) > 0 {
		e = ebcdic[0]
	}
	return p.String(e)
}

func getUint16FromGroup(g pesit.Group, id pesit.PI) (uint16, bool) {
	p, ok := g.Get(id)
	if !ok {
		return 0, false
	}
	v, err := p.Uint16()
	if err != nil {
		return 0, false
	}
	return v, true
}

func dirOf(path string) string {
	i := lastSlash(path)
	if i < 0 {
		return "."
	}
	return path[:i]
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// mapStoreError maps a store.Store error to the closest wire diagnostic
// (spec §4.9 / §6 "Errors are mapped to D2-205 / D2-211 / D2-213 / D2-219").
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return pesit.NewError(pesit.D2_205, err.Error())
	case errors.Is(err, store.ErrPermission):
		return pesit.NewError(pesit.D2_211, err.Error())
	case errors.Is(err, store.ErrNoSpace):
		return pesit.NewError(pesit.D2_219, err.Error())
	default:
		return pesit.NewError(pesit.D2_213, err.Error())
	}
}
