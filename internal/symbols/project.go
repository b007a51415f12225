package symbols

import (
	"fmt"
	"sort"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir"
	"zkvmc/internal/ir/evmla"
	"zkvmc/internal/ir/yul"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
)

// UnitKind tells contracts from libraries.
type UnitKind uint8

const (
	UnitContract UnitKind = iota
	UnitLibrary
)

func (k UnitKind) String() string {
	if k == UnitLibrary {
		return "library"
	}
	return "contract"
}

// UnitInfo is the project-wide view of one unit.
type UnitInfo struct {
	Index int
	Name  string
	Kind  UnitKind
	// Libraries are full names referenced through linker symbols.
	Libraries []string
	// Dependencies maps the name used in code (Yul object name or preprocessed
	// legacy assembly path) to the full unit name.
	Dependencies map[string]string
	Immutables   []string

	immOffset map[string]uint64
}

// DependencyUnits returns the resolved factory dependencies, sorted.
func (u *UnitInfo) DependencyUnits() []string {
	seen := make(map[string]struct{}, len(u.Dependencies))
	out := make([]string, 0, len(u.Dependencies))
	for _, full := range u.Dependencies {
		if _, dup := seen[full]; dup {
			continue
		}
		seen[full] = struct{}{}
		out = append(out, full)
	}
	sort.Strings(out)
	return out
}

// ResolveDependency maps a name used in code to a unit.
func (u *UnitInfo) ResolveDependency(name string) (string, bool) {
	full, ok := u.Dependencies[name]
	return full, ok
}

// ImmutableOffset returns 32 * index of name in the sorted declared list.
func (u *UnitInfo) ImmutableOffset(name string) (uint64, bool) {
	off, ok := u.immOffset[name]
	return off, ok
}

// ProjectTable is built once before the parallel phase and only read
// afterwards, so workers share it without locks.
type ProjectTable struct {
	units  []*UnitInfo
	byName map[string]*UnitInfo
}

// Units returns unit infos in project order.
func (t *ProjectTable) Units() []*UnitInfo { return t.units }

// Unit returns the info of a unit by full name.
func (t *ProjectTable) Unit(name string) (*UnitInfo, bool) {
	u, ok := t.byName[name]
	return u, ok
}

// IsLibrary reports whether name is a unit referenced as a library.
func (t *ProjectTable) IsLibrary(name string) bool {
	u, ok := t.byName[name]
	return ok && u.Kind == UnitLibrary
}

// BuildProjectTable collects library references, factory dependencies and
// immutables of every unit. Dependencies that match no unit are reported as
// LNK errors on the referencing unit.
func BuildProjectTable(p *project.Project, bag *diag.Bag) *ProjectTable {
	t := &ProjectTable{byName: make(map[string]*UnitInfo, len(p.Units))}
	byObject := make(map[string][]string)
	for _, u := range p.Units {
		if src, ok := u.Source.(*ir.YulSource); ok {
			byObject[src.Object.Name] = append(byObject[src.Object.Name], u.Name)
		}
	}

	for i, u := range p.Units {
		info := &UnitInfo{Index: i, Name: u.Name, Dependencies: make(map[string]string)}
		rep := diag.BagReporter{Bag: bag, Unit: u.Name}
		var declared []string
		switch src := u.Source.(type) {
		case *ir.YulSource:
			info.Libraries = yulLibraries(src.Object)
			declared = yulImmutables(src.Object)
			for _, dep := range src.Object.Dependencies() {
				full, err := resolveObject(p, byObject, dep)
				if err != nil {
					sp := src.Object.Src
					if sub := findObject(src.Object, dep); sub != nil {
						sp = sub.Src
					}
					diag.ReportError(rep, diag.LNKMissingDependency, sp, err.Error()).Emit()
					continue
				}
				info.Dependencies[dep] = full
			}
		case *ir.EVMLASource:
			info.Libraries = src.Assembly.Libraries()
			declared = evmlaImmutables(src.Assembly)
			for _, dep := range src.Assembly.Dependencies() {
				if _, ok := p.Lookup(dep); !ok {
					diag.ReportError(rep, diag.LNKMissingDependency, source.Span{File: u.File},
						fmt.Sprintf("factory dependency %s is not part of the project", dep)).Emit()
					continue
				}
				info.Dependencies[dep] = dep
			}
		}
		if u.Immutables != nil {
			declared = u.Immutables
		}
		info.Immutables = sortedUnique(declared)
		info.immOffset = make(map[string]uint64, len(info.Immutables))
		for k, name := range info.Immutables {
			info.immOffset[name] = uint64(k) * 32
		}
		t.units = append(t.units, info)
		t.byName[u.Name] = info
	}
	for _, info := range t.units {
		for _, lib := range info.Libraries {
			if target, ok := t.byName[lib]; ok {
				target.Kind = UnitLibrary
			}
		}
	}
	return t
}

func resolveObject(p *project.Project, byObject map[string][]string, name string) (string, error) {
	if _, ok := p.Lookup(name); ok {
		return name, nil
	}
	switch cands := byObject[name]; len(cands) {
	case 1:
		return cands[0], nil
	case 0:
		return "", fmt.Errorf("factory dependency %q is not part of the project", name)
	default:
		return "", fmt.Errorf("factory dependency %q is ambiguous: %v", name, cands)
	}
}

func findObject(obj *yul.Object, name string) *yul.Object {
	if sub := obj.Find(name); sub != nil {
		return sub
	}
	return obj.Runtime().Find(name)
}

func yulLibraries(obj *yul.Object) []string {
	var names []string
	for _, seg := range []*yul.Object{obj, obj.Runtime()} {
		if seg == nil || seg.Code == nil {
			continue
		}
		for _, c := range yul.LiteralCalls(seg.Code, "linkersymbol") {
			if v, ok := yul.LiteralArg(c, 0); ok {
				if full, err := project.NormalizeName(v); err == nil {
					v = full
				}
				names = append(names, v)
			}
		}
	}
	return sortedUnique(names)
}

func yulImmutables(obj *yul.Object) []string {
	var names []string
	for _, seg := range []*yul.Object{obj, obj.Runtime()} {
		if seg == nil || seg.Code == nil {
			continue
		}
		for _, c := range yul.LiteralCalls(seg.Code, "setimmutable") {
			if v, ok := yul.LiteralArg(c, 1); ok {
				names = append(names, v)
			}
		}
		for _, c := range yul.LiteralCalls(seg.Code, "loadimmutable") {
			if v, ok := yul.LiteralArg(c, 0); ok {
				names = append(names, v)
			}
		}
	}
	return names
}

func evmlaImmutables(asm *evmla.Assembly) []string {
	var names []string
	for _, seg := range []*evmla.Assembly{asm, asm.Runtime()} {
		if seg == nil {
			continue
		}
		for _, in := range seg.Code {
			if in.Name == evmla.NamePushImmutable || in.Name == evmla.NameAssignImmutable {
				names = append(names, in.Value)
			}
		}
	}
	return names
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	w := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[w-1] {
			out[w] = out[i]
			w++
		}
	}
	return out[:w]
}
