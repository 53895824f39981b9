package core

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// PanicError carries a value recovered from a task function together with
// the goroutine stack captured at recovery time.
type PanicError struct {
	Value any
	stack []byte
}

// NewPanicError captures the current stack for v.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a recovered error value.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Stack returns the captured goroutine stack.
func (e *PanicError) Stack() []byte { return e.stack }

// OutputMismatchError reports a function returning a different number of
// values than its task declares outputs.
type OutputMismatchError struct {
	TaskID string
	Want   int
	Got    int
}

func (e *OutputMismatchError) Error() string {
	return fmt.Sprintf("task %s: function returned %d outputs, want %d", e.TaskID, e.Got, e.Want)
}

// maxCauses bounds the cause lines of one traceback.
const maxCauses = 32

type stackCarrier interface {
	Stack() []byte
}

// FormatTraceback renders err as "<type>: <message>", followed by one
// "caused by" line per wrapped cause and the captured stack, if any.
func FormatTraceback(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%T: %v", err, err)
	var stack []byte
	if sc, ok := err.(stackCarrier); ok {
		stack = sc.Stack()
	}
	queue := causes(err)
	for n := 0; len(queue) > 0 && n < maxCauses; n++ {
		cause := queue[0]
		queue = queue[1:]
		if cause == nil {
			continue
		}
		fmt.Fprintf(&b, "\ncaused by %T: %v", cause, cause)
		if sc, ok := cause.(stackCarrier); ok && stack == nil {
			stack = sc.Stack()
		}
		queue = append(queue, causes(cause)...)
	}
	if len(stack) > 0 {
		b.WriteString("\n")
		b.Write(stack)
	}
	return strings.TrimRight(b.String(), "\n")
}

func causes(err error) []error {
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		return u.Unwrap()
	case interface{ Unwrap() error }:
		if c := u.Unwrap(); c != nil {
			return []error{c}
		}
	}
	return nil
}

// collectErrors drops nil entries.
func collectErrors(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
