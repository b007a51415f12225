package diag

// Severity orders diagnostics; only SevError fails a unit.
type Severity uint8

const (
	SevInfo Severity = iota
	// SevWarning is advisory and never fails a build.
	SevWarning
	SevError
)

var severityNames = [...]string{SevInfo: "INFO", SevWarning: "WARNING", SevError: "ERROR"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "UNKNOWN"
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool { return s >= min }
