package evmla

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DataEntry is one element of the .data section: a nested assembly, a raw
// hex blob or, after preprocessing, a reference to another unit by path.
type DataEntry struct {
	Assembly *Assembly
	Hex      string
	Path     string
}

func (d *DataEntry) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &d.Hex)
	}
	d.Assembly = new(Assembly)
	return json.Unmarshal(b, d.Assembly)
}

func (d DataEntry) MarshalJSON() ([]byte, error) {
	switch {
	case d.Assembly != nil:
		return json.Marshal(d.Assembly)
	case d.Path != "":
		return json.Marshal("path:" + d.Path)
	}
	return json.Marshal(d.Hex)
}

// Assembly is the legacy assembly of one code segment.
type Assembly struct {
	Code []Instruction        `json:".code"`
	Data map[string]*DataEntry `json:".data,omitempty"`
}

// Decode reads the solc legacy assembly JSON.
func Decode(data []byte) (*Assembly, error) {
	var a Assembly
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("legacy assembly: %w", err)
	}
	if len(a.Code) == 0 {
		return nil, fmt.Errorf("legacy assembly: empty .code")
	}
	return &a, nil
}

// Runtime returns the runtime assembly nested under data key "0".
func (a *Assembly) Runtime() *Assembly {
	if a == nil || a.Data == nil {
		return nil
	}
	if e := a.Data[RuntimeKey]; e != nil {
		return e.Assembly
	}
	return nil
}

// DataKeys returns the .data keys in numeric-then-lexical order.
func (a *Assembly) DataKeys() []string {
	keys := make([]string, 0, len(a.Data))
	for k := range a.Data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) && !strings.Contains(keys[i]+keys[j], ":") {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Dependencies returns the unit paths referenced by preprocessed data
// entries of both code segments, sorted and de-duplicated.
func (a *Assembly) Dependencies() []string {
	seen := make(map[string]struct{})
	var walk func(*Assembly)
	walk = func(asm *Assembly) {
		if asm == nil {
			return
		}
		for _, e := range asm.Data {
			if e.Path != "" {
				seen[e.Path] = struct{}{}
			}
		}
		walk(asm.Runtime())
	}
	walk(a)
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Libraries returns library paths referenced by PUSHLIB in both segments.
func (a *Assembly) Libraries() []string {
	seen := make(map[string]struct{})
	for _, asm := range []*Assembly{a, a.Runtime()} {
		if asm == nil {
			continue
		}
		for _, in := range asm.Code {
			if in.Name == NamePushLib {
				seen[in.Value] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Listing renders deploy code followed by runtime code, one instruction per
// line; diagnostics index lines of this listing.
func Listing(a *Assembly) string {
	var sb strings.Builder
	write := func(seg string, code []Instruction) {
		for i, in := range code {
			fmt.Fprintf(&sb, "%s %5d  %s\n", seg, i, in)
		}
	}
	write("deploy ", a.Code)
	if rt := a.Runtime(); rt != nil {
		write("runtime", rt.Code)
	}
	return sb.String()
}
