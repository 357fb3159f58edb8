package worker

import "errors"

var (
	ErrBanned          = errors.New("worker: banned")
	ErrWaitingRelogin  = errors.New("worker: waiting until relogin")
	ErrNotLoggedIn     = errors.New("worker: not logged in")
	ErrInvalidCredFile = errors.New("worker: invalid credentials file")
)
