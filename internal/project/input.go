package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir"
	"zkvmc/internal/ir/evmla"
	"zkvmc/internal/ir/yul"
	"zkvmc/internal/source"
)

// Project is a loaded, name-sorted set of units plus build settings.
type Project struct {
	Units     []*Unit
	Libraries Libraries
	Settings  Settings
	Files     *source.FileSet

	byName map[string]int
}

// Lookup returns the unit with the given full name.
func (p *Project) Lookup(name string) (*Unit, bool) {
	i, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return p.Units[i], true
}

// Index returns the position of a unit in Units, or -1.
func (p *Project) Index(name string) int {
	if i, ok := p.byName[name]; ok {
		return i
	}
	return -1
}

// Loader collects units from input files. Problems with individual inputs
// are reported as PRJ/IRV diagnostics; Finish fails if any were errors.
type Loader struct {
	Files     *source.FileSet
	Bag       *diag.Bag
	Settings  Settings
	Libraries Libraries
	// Root, when set, makes unit names relative to the project root.
	Root string

	units []*Unit
	seen  map[string]source.Span
}

// NewLoader creates a loader writing into fs and bag.
func NewLoader(fs *source.FileSet, bag *diag.Bag) *Loader {
	return &Loader{
		Files:     fs,
		Bag:       bag,
		Libraries: make(Libraries),
		seen:      make(map[string]source.Span),
	}
}

func (l *Loader) report(code diag.Code, unit string, sp source.Span, format string, args ...any) {
	rep := diag.BagReporter{Bag: l.Bag, Unit: unit}
	if rb := diag.ReportError(rep, code, sp, fmt.Sprintf(format, args...)); rb != nil {
		rb.Emit()
	}
}

// LoadFile dispatches on the file name:
// *.yul - Yul text, *.yul.json - structured Yul, *.evmla.json / *.asm.json -
// legacy assembly, any other *.json - standard JSON project input.
func (l *Loader) LoadFile(path string) error {
	// #nosec G304 -- path is provided by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		l.report(diag.PRJIO, "", source.Span{}, "%s: %v", path, err)
		return err
	}
	path = l.unitPath(path)
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".yul"):
		l.AddYulText(path, data)
	case strings.HasSuffix(base, ".yul.json"):
		l.AddYulJSON(JoinName(path, strings.TrimSuffix(base, ".yul.json")), data)
	case strings.HasSuffix(base, ".evmla.json"):
		l.AddEVMLA(JoinName(path, strings.TrimSuffix(base, ".evmla.json")), data)
	case strings.HasSuffix(base, ".asm.json"):
		l.AddEVMLA(JoinName(path, strings.TrimSuffix(base, ".asm.json")), data)
	case strings.HasSuffix(base, ".json"):
		return l.AddStandardJSON(path, data)
	default:
		l.report(diag.PRJIO, "", source.Span{}, "%s: unrecognised input kind", path)
		return fmt.Errorf("%s: unrecognised input kind", path)
	}
	return nil
}

// unitPath is the path part of unit names for a file on disk.
func (l *Loader) unitPath(path string) string {
	if l.Root == "" {
		return filepath.ToSlash(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil || !pathWithin(l.Root, abs) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(l.Root, abs)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (l *Loader) add(u *Unit, sp source.Span) {
	if prev, dup := l.seen[u.Name]; dup {
		rb := diag.ReportError(diag.BagReporter{Bag: l.Bag, Unit: u.Name}, diag.PRJDuplicateContract, sp,
			fmt.Sprintf("contract %s is defined more than once", u.Name))
		rb.WithNote(prev, "previous definition").Emit()
		return
	}
	l.seen[u.Name] = sp
	l.units = append(l.units, u)
}

// AddYulText parses Yul source text; the unit is named path:<object name>.
func (l *Loader) AddYulText(path string, src []byte) {
	file, src := l.Files.AddText(path, src, 0)
	obj, err := yul.ParseText(path, src, file)
	if err != nil {
		var se *yul.SyntaxError
		if errors.As(err, &se) {
			l.report(diag.IRVMalformedInput, path, se.Span, "%s", se.Msg)
		} else {
			l.report(diag.IRVMalformedInput, path, source.Span{File: file}, "%v", err)
		}
		return
	}
	name := obj.Name
	if !strings.Contains(name, ":") {
		name = JoinName(path, obj.Name)
	}
	l.addYul(name, obj, file, src, nil)
}

// AddYulJSON decodes the structured Yul form.
func (l *Loader) AddYulJSON(name string, data []byte) {
	file := l.Files.AddVirtual(name+".yul.json", data)
	obj, err := yul.DecodeJSON(data, file)
	if err != nil {
		l.report(diag.IRVMalformedInput, name, source.Span{File: file}, "%v", err)
		return
	}
	l.addYul(name, obj, file, data, nil)
}

func (l *Loader) addYul(name string, obj *yul.Object, file source.FileID, raw []byte, immutables []string) {
	path, contract, err := SplitName(name)
	if err != nil {
		l.report(diag.PRJUnknownContract, name, source.Span{File: file}, "%v", err)
		return
	}
	u := &Unit{
		Name:        JoinName(path, contract),
		Path:        path,
		Contract:    contract,
		Source:      &ir.YulSource{Object: obj},
		File:        file,
		Immutables:  immutables,
		ContentHash: DigestBytes(raw),
	}
	l.add(u, obj.Src)
}

// AddEVMLA decodes a legacy assembly. The instruction listing is attached in
// Finish, after dependency preprocessing.
func (l *Loader) AddEVMLA(name string, data []byte) {
	l.addEVMLA(name, data, nil)
}

func (l *Loader) addEVMLA(name string, data []byte, immutables []string) {
	asm, err := evmla.Decode(data)
	if err != nil {
		l.report(diag.IRVMalformedInput, name, source.Span{}, "%v", err)
		return
	}
	path, contract, err := SplitName(name)
	if err != nil {
		l.report(diag.PRJUnknownContract, name, source.Span{}, "%v", err)
		return
	}
	u := &Unit{
		Name:        JoinName(path, contract),
		Path:        path,
		Contract:    contract,
		Source:      &ir.EVMLASource{Assembly: asm},
		Immutables:  immutables,
		ContentHash: DigestBytes(data),
	}
	l.add(u, source.Span{})
}

type standardInput struct {
	Language  string                                 `json:"language"`
	Contracts map[string]map[string]standardContract `json:"contracts"`
	Libraries map[string]map[string]string           `json:"libraries"`
	Settings  *standardSettings                      `json:"settings"`
}

type standardContract struct {
	Yul        json.RawMessage `json:"yul"`
	YulText    string          `json:"yulText"`
	EVMLA      json.RawMessage `json:"evmla"`
	Immutables []string        `json:"immutables"`
}

type standardSettings struct {
	Optimizer         *string  `json:"optimizer"`
	AllowPlaceholders *bool    `json:"allowPlaceholders"`
	SuppressedErrors  []string `json:"suppressedErrors"`
	OutputContracts   []string `json:"outputContracts"`
	OutputAssembly    bool     `json:"outputAssembly"`
	OutputLLVM        bool     `json:"outputLLVM"`
	OutputNative      bool     `json:"outputNative"`
}

// AddStandardJSON loads a whole project description:
//
//	{"contracts": {path: {Name: {"yul"|"yulText"|"evmla": ...}}},
//	 "libraries": {path: {Name: "0x.."}}, "settings": {...}}
func (l *Loader) AddStandardJSON(path string, data []byte) error {
	var in standardInput
	if err := json.Unmarshal(data, &in); err != nil {
		l.report(diag.PRJManifest, "", source.Span{}, "%s: %v", path, err)
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, file := range sortedKeys(in.Contracts) {
		byName := in.Contracts[file]
		for _, contract := range sortedKeys(byName) {
			c := byName[contract]
			name := JoinName(file, contract)
			switch {
			case len(c.Yul) > 0:
				fid := l.Files.AddVirtual(name+".yul.json", c.Yul)
				obj, err := yul.DecodeJSON(c.Yul, fid)
				if err != nil {
					l.report(diag.IRVMalformedInput, name, source.Span{File: fid}, "%v", err)
					continue
				}
				l.addYul(name, obj, fid, c.Yul, c.Immutables)
			case c.YulText != "":
				src := []byte(c.YulText)
				fid := l.Files.AddVirtual(name+".yul", src)
				obj, err := yul.ParseText(name, src, fid)
				if err != nil {
					var se *yul.SyntaxError
					sp := source.Span{File: fid}
					msg := err.Error()
					if errors.As(err, &se) {
						sp, msg = se.Span, se.Msg
					}
					l.report(diag.IRVMalformedInput, name, sp, "%s", msg)
					continue
				}
				l.addYul(name, obj, fid, src, c.Immutables)
			case len(c.EVMLA) > 0:
				l.addEVMLA(name, c.EVMLA, c.Immutables)
			default:
				l.report(diag.PRJManifest, name, source.Span{}, "contract %s has no yul, yulText or evmla input", name)
			}
		}
	}
	for _, file := range sortedKeys(in.Libraries) {
		for _, lib := range sortedKeys(in.Libraries[file]) {
			addr, err := ParseAddress(in.Libraries[file][lib])
			if err != nil {
				l.report(diag.LNKInvalidAddress, JoinName(file, lib), source.Span{}, "%v", err)
				continue
			}
			l.Libraries[JoinName(file, lib)] = addr
		}
	}
	if s := in.Settings; s != nil {
		if s.Optimizer != nil {
			lvl, err := ParseOptLevel(*s.Optimizer)
			if err != nil {
				l.report(diag.PRJBadSettings, "", source.Span{}, "%v", err)
			}
			l.Settings.Optimizer = lvl
		}
		if s.AllowPlaceholders != nil {
			l.Settings.AllowPlaceholders = *s.AllowPlaceholders
		}
		if len(s.SuppressedErrors) > 0 {
			sup, err := NormalizeSuppressed(append(l.Settings.Suppressed, s.SuppressedErrors...))
			if err != nil {
				l.report(diag.PRJBadSettings, "", source.Span{}, "%v", err)
			}
			l.Settings.Suppressed = sup
		}
		l.Settings.Contracts = append(l.Settings.Contracts, s.OutputContracts...)
		l.Settings.EmitAssembly = l.Settings.EmitAssembly || s.OutputAssembly
		l.Settings.EmitLLVM = l.Settings.EmitLLVM || s.OutputLLVM
		l.Settings.EmitNative = l.Settings.EmitNative || s.OutputNative
	}
	return nil
}

// Finish preprocesses legacy assembly dependencies, attaches instruction
// listings and returns the name-sorted project.
func (l *Loader) Finish() (*Project, error) {
	asms := make(map[string]*evmla.Assembly)
	for _, u := range l.units {
		if src, ok := u.Source.(*ir.EVMLASource); ok {
			asms[u.Name] = src.Assembly
		}
	}
	if len(asms) > 0 {
		if err := evmla.PreprocessDependencies(asms); err != nil {
			l.report(diag.LNKMissingDependency, "", source.Span{}, "%v", err)
		}
	}
	for _, u := range l.units {
		if src, ok := u.Source.(*ir.EVMLASource); ok {
			src.Text = evmla.Listing(src.Assembly)
			u.File = l.Files.Add(u.Name+".evmla", []byte(src.Text), source.FileVirtual|source.FileInstructions)
		}
	}
	if l.Bag != nil && l.Bag.HasErrors() {
		return nil, errors.New("project input has errors")
	}
	units := append([]*Unit(nil), l.units...)
	SortUnits(units)
	p := &Project{
		Units:     units,
		Libraries: l.Libraries,
		Settings:  l.Settings,
		Files:     l.Files,
		byName:    make(map[string]int, len(units)),
	}
	for i, u := range units {
		p.byName[u.Name] = i
	}
	return p, nil
}

// NewProject assembles a project from already-built units; used by tests
// and the cache path.
func NewProject(fs *source.FileSet, units []*Unit, libs Libraries, settings Settings) *Project {
	units = append([]*Unit(nil), units...)
	SortUnits(units)
	if libs == nil {
		libs = make(Libraries)
	}
	p := &Project{Units: units, Libraries: libs, Settings: settings, Files: fs, byName: make(map[string]int, len(units))}
	for i, u := range units {
		p.byName[u.Name] = i
	}
	return p
}
