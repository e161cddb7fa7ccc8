// Package cluster supplies the single signal the core depends on from its
// clustering layer: whether this instance is currently the leader. Election,
// heartbeats, and failover are explicitly outside the core's concern (spec
// "Out of scope: cluster leader election (treated as an external
// am-I-leader signal)"); the session dispatcher (C9) consults LeaderSignal
// before accepting a connection and nothing else couples to clustering.
package cluster

import "sync/atomic"

// LeaderSignal reports whether this instance should currently accept new
// sessions. Implementations range from "always true" (standalone
// deployment) to a wrapper around an external election mechanism.
type LeaderSignal interface {
	AmILeader() bool
}

// Static is a LeaderSignal with a fixed answer, used for standalone
// deployments that never run multiple instances.
type Static bool

func (s Static) AmILeader() bool { return bool(s) }

// Flag is a LeaderSignal whose value can be updated concurrently, for an
// external election mechanism (not part of this module) to drive via
// SetLeader as leadership changes hands.
type Flag struct {
	leader atomic.Bool
}

// NewFlag creates a Flag starting in the given leadership state.
func NewFlag(initial bool) *Flag {
	f := &Flag{}
	f.leader.Store(initial)
	return f
}

func (f *Flag) AmILeader() bool { return f.leader.Load() }

// SetLeader updates the leadership state. Safe for concurrent use.
func (f *Flag) SetLeader(leader bool) { f.leader.Store(leader) }

var _ LeaderSignal = Static(false)
var _ LeaderSignal = (*Flag)(nil)
