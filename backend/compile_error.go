package backend

import "fmt"

// CompileError is returned when the backend hits an internal
// inconsistency — a compiler bug, never an author error (those are
// diag.Diagnostics on the frontend.Snapshot and never reach the
// backend). The current running program is kept by the caller; this
// error only carries enough context to diagnose the bug.
type CompileError struct {
	Pass    string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("backend: internal invariant violated in pass %q: %s", e.Pass, e.Message)
}

func fail(pass, format string, args ...any) error {
	return &CompileError{Pass: pass, Message: fmt.Sprintf(format, args...)}
}
