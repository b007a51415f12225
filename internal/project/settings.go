package project

import (
	"fmt"
	"sort"
	"strings"
)

// OptLevel is the optimisation level of the native pass pipeline.
type OptLevel uint8

const (
	OptNone OptLevel = iota
	OptSize
	OptSpeed
)

func (l OptLevel) String() string {
	switch l {
	case OptSize:
		return "z"
	case OptSpeed:
		return "3"
	default:
		return "0"
	}
}

// ParseOptLevel accepts 0/none, z/s/size, 1/2/3/speed.
func ParseOptLevel(s string) (OptLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "none":
		return OptNone, nil
	case "z", "s", "size":
		return OptSize, nil
	case "1", "2", "3", "speed":
		return OptSpeed, nil
	}
	return OptNone, fmt.Errorf("unknown optimization level %q", s)
}

func (l OptLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *OptLevel) UnmarshalText(b []byte) error {
	v, err := ParseOptLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Suppressible error kinds.
const (
	SuppressSelfDestruct = "selfdestruct"
	SuppressExtCodeCopy  = "extcodecopy"
	SuppressCallCode     = "callcode"
	SuppressPC           = "pc"
	SuppressBlob         = "blob"
)

var suppressible = map[string]struct{}{
	SuppressSelfDestruct: {},
	SuppressExtCodeCopy:  {},
	SuppressCallCode:     {},
	SuppressPC:           {},
	SuppressBlob:         {},
}

// Settings are the per-build knobs shared by every unit.
type Settings struct {
	Optimizer         OptLevel
	AllowPlaceholders bool
	Suppressed        []string
	EmitAssembly      bool
	EmitLLVM          bool
	EmitNative        bool
	// Contracts restricts which units produce output artifacts; empty means all.
	Contracts []string
	Jobs      int
	CacheDir  string
}

// Suppresses reports whether kind is in the suppressed list.
func (s Settings) Suppresses(kind string) bool {
	for _, k := range s.Suppressed {
		if k == kind {
			return true
		}
	}
	return false
}

// NormalizeSuppressed validates, de-duplicates and sorts the list.
func NormalizeSuppressed(kinds []string) ([]string, error) {
	seen := make(map[string]struct{}, len(kinds))
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if _, ok := suppressible[k]; !ok {
			return nil, fmt.Errorf("error kind %q cannot be suppressed", k)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Outputs reports whether unit name is selected for output.
func (s Settings) Outputs(name string) bool {
	if len(s.Contracts) == 0 {
		return true
	}
	for _, c := range s.Contracts {
		if c == name || c == "*" {
			return true
		}
		if path, _, err := SplitName(name); err == nil && (c == path+":*" || c == path) {
			return true
		}
	}
	return false
}
