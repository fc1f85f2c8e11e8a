// Package sioerr holds the sentinel errors shared across ioruntime,
// resource, and pool rather than duplicated per package, following this
// corpus's habit (ehrlich-b-go-iouring/errors.go) of one small errors.go
// per module instead of ad hoc fmt.Errorf strings at each call site.
package sioerr

import "errors"

var (
	// ErrContextStopped reports that a Context accepts no further work.
	// Context.Submit and SubmitImportant report that case with a false
	// result, not with this error.
	ErrContextStopped = errors.New("sio: context stopped")

	// ErrAlreadyRunning is returned by RunUntilStopped/RunUntilEmpty when
	// another goroutine already holds the run-loop trylock.
	ErrAlreadyRunning = errors.New("sio: context already running")

	// ErrNotRunning reports that an operation found no live run loop.
	// RequestStop and Wakeup return no error and never produce it.
	ErrNotRunning = errors.New("sio: context not running")

	// ErrResetWhileRunning names a reset attempted while a run loop is in
	// progress. Context has no Reset method, so nothing returns it.
	ErrResetWhileRunning = errors.New("sio: reset called while running")
)
