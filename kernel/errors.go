package kernel

import (
	"fmt"
	"strings"

	"github.com/delaneyj/deltasim/evalstate"
	"github.com/pkg/errors"
)

var (
	// ErrConfig wraps every elaboration failure.
	ErrConfig          = errors.New("configuration error")
	ErrDeltaLimit      = errors.New("delta cycle limit exceeded")
	ErrZeroTimeLoop    = errors.New("too many resumptions without advancing time")
	ErrMultipleDrivers = errors.New("signal driven by more than one sync process in one edge")
	ErrShutdown        = errors.New("simulator is shut down")
	ErrUnboundPort     = errors.New("port is not bound to an export")
	ErrAlreadyReleased = errors.New("already released")
	ErrKilled          = errors.New("task killed")

	ErrTiedSignal  = evalstate.ErrTiedSignal
	ErrBoundSignal = evalstate.ErrBoundSignal
)

func configErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

// CombLoopError reports comb processes that kept re-triggering each other
// within one delta.
type CombLoopError struct {
	Processes []string
	Signals   []string
	Limit     int
}

func (e *CombLoopError) Error() string {
	return fmt.Sprintf("combinational loop: processes [%s] exceeded %d evaluations while writing [%s]",
		strings.Join(e.Processes, ", "), e.Limit, strings.Join(e.Signals, ", "))
}

// IndexError is returned for accesses outside a memory's declared size.
type IndexError struct {
	Memory string
	Index  int
	Size   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: index %d out of range [0, %d)", e.Memory, e.Index, e.Size)
}

// TaskError carries the failure of a task body.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *TaskError) Cause() error  { return e.Err }
func (e *TaskError) Unwrap() error { return e.Err }
