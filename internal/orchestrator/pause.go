package orchestrator

import "sync/atomic"

// Switch is the process-wide pause flag. The control surface (REST, config
// reload) writes it; the orchestrator reads it on every activation.
type Switch struct {
	paused atomic.Bool
}

func NewSwitch(paused bool) *Switch {
	s := &Switch{}
	s.paused.Store(paused)
	return s
}

func (s *Switch) Paused() bool { return s.paused.Load() }

// Set updates the flag and reports whether it changed.
func (s *Switch) Set(paused bool) bool { return s.paused.Swap(paused) != paused }
