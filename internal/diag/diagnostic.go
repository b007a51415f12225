package diag

import (
	"zkvmc/internal/source"
)

type Note struct {
	Span source.Span
	Msg  string
}

// Diagnostic is one finding about a unit. Unit is the fully qualified
// contract name ("path:Name") and may be empty for project-level findings.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Unit     string
	Message  string
	Primary  source.Span
	Notes    []Note
}
