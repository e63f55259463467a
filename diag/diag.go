// Package diag collects compile and runtime diagnostics without throwing.
//
// Frontend passes run best-effort: every pass attaches its findings to a
// List and keeps going so downstream passes still produce partial
// provenance even after an earlier failure.
package diag

import "fmt"

// Kind identifies the taxonomy entry a Diagnostic belongs to.
type Kind string

const (
	UnresolvedInput       Kind = "UnresolvedInput"
	TypeMismatch          Kind = "TypeMismatch"
	CardinalityConflict   Kind = "CardinalityConflict"
	IllegalCycle          Kind = "IllegalCycle"
	DuplicateDisplayName  Kind = "DuplicateDisplayName"
	InternalInvariant     Kind = "InternalInvariant"
	LaneAnomaly           Kind = "LaneAnomaly"
	BufferPoolLeak        Kind = "BufferPoolLeak"
	StateMigrationMismatch Kind = "StateMigrationMismatch"
)

// Severity ranks how serious a Diagnostic is. backendReady requires no
// Diagnostic at SeverityError or above.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Diagnostic is a single taxonomy entry attached to a block, port or edge.
// Block/Port/Edge are left as plain strings (rather than the typed IDs
// defined in graph/registry) so this package stays a leaf with no
// dependency on the graph model it annotates.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Message  string
	Block    string
	Port     string
	Edge     string
}

func (d Diagnostic) String() string {
	loc := d.Block
	if d.Port != "" {
		loc += "." + d.Port
	}
	if d.Edge != "" {
		loc = "edge:" + d.Edge
	}
	return fmt.Sprintf("[%s] %s at %s: %s", d.Severity, d.Kind, loc, d.Message)
}

// List accumulates Diagnostics across compiler passes.
type List []Diagnostic

// Add appends a Diagnostic in place.
func (l *List) Add(d Diagnostic) {
	*l = append(*l, d)
}

// HasSeverity reports whether any entry is at or above the given severity.
func (l List) HasSeverity(min Severity) bool {
	for _, d := range l {
		if d.Severity >= min {
			return true
		}
	}
	return false
}

// HasErrors reports whether compile must be considered failed.
func (l List) HasErrors() bool {
	return l.HasSeverity(SeverityError)
}
