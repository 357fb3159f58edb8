package orchestrator

import "errors"

var (
	// ErrTooManyBanned ends the run when banned workers exceed the limit.
	ErrTooManyBanned = errors.New("too many banned workers")
	// ErrSimulationComplete ends a simulated run after its configured duration.
	ErrSimulationComplete = errors.New("simulation complete")
)
