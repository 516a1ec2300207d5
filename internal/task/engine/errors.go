package engine

import "errors"

var (
	ErrStarted        = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
	ErrNoRegistry     = errors.New("engine needs a job registry")
	ErrDequeueTimeout = errors.New("dequeue timed out")
	ErrPanic          = errors.New("task panicked")
)
