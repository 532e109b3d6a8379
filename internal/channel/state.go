package channel

import "sync/atomic"

// State is the process-wide channel readiness flag. It flips on
// channel.ready / channel.disconnected lifecycle events and is read-only for
// the dispatcher precondition check. Single accessor, no scattered globals.
type State struct {
	ready atomic.Bool
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }
