package stacktrace

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Error is an error annotated with the call stack of the place it was
// wrapped.
type Error struct {
	Err     error
	Callers []string
}

var _ error = (*Error)(nil)

// New wraps err with the stack trace of the caller of New. Errors that
// already carry a stack trace are returned unchanged.
//
// Capturing callers is not free. Reserve it for errors coming out of
// operations that are not expected to fail (filesystem writes, template
// parsing of files already known to exist, network calls), never for
// ordinary validation failures like a ParseError. Do not wrap the result of
// errgroup.Wait() either, the error was already wrapped in the goroutine
// that produced it.
func New(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{
		Err:     err,
		Callers: callers(3),
	}
}

// RecoverPanic turns a panic into an *Error stored in err. It must be called
// directly by a deferred statement.
func RecoverPanic(err *error) {
	v := recover()
	if v == nil || err == nil {
		return
	}
	*err = &Error{
		Err:     fmt.Errorf("panic: %v", v),
		Callers: callers(3),
	}
}

func callers(skip int) []string {
	var pc [30]uintptr
	n := runtime.Callers(skip, pc[:])
	frames := runtime.CallersFrames(pc[:n])
	lines := make([]string, 0, n)
	for frame, more := frames.Next(); more; frame, more = frames.Next() {
		lines = append(lines, frame.File+":"+strconv.Itoa(frame.Line))
	}
	return lines
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error prints the callers outermost first, followed by the wrapped error.
func (e *Error) Error() string {
	var b strings.Builder
	for i := len(e.Callers) - 1; i >= 0; i-- {
		b.WriteString(e.Callers[i])
		if i > 0 {
			b.WriteString(" -> ")
		}
	}
	if e.Err == nil {
		b.WriteString(": <nil>")
	} else {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}
