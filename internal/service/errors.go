package service

import "fmt"

type ErrRunQueueFull struct{}

func (e ErrRunQueueFull) Error() string {
	return "run queue is full"
}

func NewErrRunQueueFull() *ErrRunQueueFull {
	return &ErrRunQueueFull{}
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}

// GeneratorError is a generator step exiting non-zero. It aborts the
// run; remaining steps are skipped.
type GeneratorError struct {
	Step string
	Err  error
}

func (ge GeneratorError) Error() string {
	return fmt.Sprintf("generator step '%s' failed: %v", ge.Step, ge.Err)
}

func (ge GeneratorError) Unwrap() error {
	return ge.Err
}

// PublishError is a commit or push failure other than "nothing to
// commit". It fails the run; artifacts on disk are left as-is.
type PublishError struct {
	Op  string
	Err error
}

func (pe PublishError) Error() string {
	return fmt.Sprintf("publish %s failed: %v", pe.Op, pe.Err)
}

func (pe PublishError) Unwrap() error {
	return pe.Err
}
