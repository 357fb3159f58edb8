package app

import (
	"errors"

	"clairvoyance/internal/orchestrator"
)

type StopReason string

const (
	StopUnknown            StopReason = "unknown"
	StopSIGINT             StopReason = "sigint"
	StopSIGTERM            StopReason = "sigterm"
	StopFatalError         StopReason = "fatal_error"
	StopTooManyBanned      StopReason = "too_many_banned"
	StopSimulationComplete StopReason = "simulation_complete"
	StopAppStop            StopReason = "app_stop"
)

// ReasonFor maps the error that ended a run to a stop reason. A nil error
// means the run was stopped from outside.
func ReasonFor(err error) StopReason {
	switch {
	case err == nil:
		return StopAppStop
	case errors.Is(err, orchestrator.ErrSimulationComplete):
		return StopSimulationComplete
	case errors.Is(err, orchestrator.ErrTooManyBanned):
		return StopTooManyBanned
	default:
		return StopFatalError
	}
}

// Clean reports whether a run that ended for reason should exit with status 0.
func (r StopReason) Clean() bool {
	switch r {
	case StopSIGINT, StopSIGTERM, StopSimulationComplete, StopAppStop:
		return true
	}
	return false
}
