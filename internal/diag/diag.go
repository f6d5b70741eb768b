// Package diag holds the diagnostic types shared by every stage of the
// qprove front end: parser, resolver, type checker, and quantum validator.
package diag

import "fmt"

// Severity represents how serious a diagnostic is.
type Severity int

const (
	SeverityOff Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityOff:
		return "off"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a config string into a Severity.
// Unknown values map to SeverityWarning.
func ParseSeverity(s string) Severity {
	switch s {
	case "off":
		return SeverityOff
	case "info":
		return SeverityInfo
	case "warning", "warn":
		return SeverityWarning
	case "error":
		return SeverityError
	default:
		return SeverityWarning
	}
}

// Stage identifies the pipeline stage that produced a diagnostic.
type Stage string

const (
	StageParse     Stage = "parse"
	StageResolve   Stage = "resolve"
	StageTypecheck Stage = "typecheck"
	StageValidate  Stage = "validate"
	StageProve     Stage = "prove"
)

// Span is a half-open source region. Spans are metadata only and are never
// used for node identity.
type Span struct {
	File      string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

func (s Span) String() string {
	if s.File == "" {
		return fmt.Sprintf("%d:%d", s.Line, s.Column)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// Diagnostic is a single finding reported against a source span.
type Diagnostic struct {
	Stage    Stage
	Rule     string
	Severity Severity
	Message  string
	Hint     string
	Span     Span
}

func (d *Diagnostic) String() string {
	if d.Hint != "" {
		return fmt.Sprintf("%s: %s: %s (hint: %s)", d.Span, d.Severity, d.Message, d.Hint)
	}
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Severity, d.Message)
}

// HasErrors reports whether any diagnostic in the slice is an error.
func HasErrors(ds []*Diagnostic) bool {
	for _, d := range ds {
		if d.Severity >= SeverityError {
			return true
		}
	}
	return false
}

// Errors filters the slice down to hard errors.
func Errors(ds []*Diagnostic) []*Diagnostic {
	var out []*Diagnostic
	for _, d := range ds {
		if d.Severity >= SeverityError {
			out = append(out, d)
		}
	}
	return out
}
