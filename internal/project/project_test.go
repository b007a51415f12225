package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir"
	"zkvmc/internal/source"
)

func TestNormalizeName(t *testing.T) {
	got, err := NormalizeName(" src\\caf\u0065\u0301.sol : Token ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if want := "src/caf\u00e9.sol:Token"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	for _, bad := range []string{"Token", ":Token", "a.sol:", "a.sol:1Token"} {
		if _, err := NormalizeName(bad); err == nil {
			t.Fatalf("%q should be rejected", bad)
		}
	}
}

func TestSplitNameUsesLastColon(t *testing.T) {
	path, contract, err := SplitName("C:/work/a.sol:Lib")
	if err != nil || path != "C:/work/a.sol" || contract != "Lib" {
		t.Fatalf("got %q %q %v", path, contract, err)
	}
}

func TestParseOptLevel(t *testing.T) {
	cases := map[string]OptLevel{"": OptNone, "0": OptNone, "z": OptSize, "size": OptSize, "3": OptSpeed, "speed": OptSpeed}
	for in, want := range cases {
		got, err := ParseOptLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseOptLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseOptLevel("fast"); err == nil {
		t.Fatalf("unknown level accepted")
	}
}

func TestNormalizeSuppressed(t *testing.T) {
	got, err := NormalizeSuppressed([]string{"SelfDestruct", "callcode", "selfdestruct"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "callcode" || got[1] != "selfdestruct" {
		t.Fatalf("got %v", got)
	}
	if _, err := NormalizeSuppressed([]string{"sstore"}); err == nil {
		t.Fatalf("sstore is not suppressible")
	}
}

func TestParseLibraries(t *testing.T) {
	libs, err := ParseLibraries([]string{"lib/Math.sol:Math=0x00000000000000000000000000000000000000aa"})
	if err != nil {
		t.Fatal(err)
	}
	if libs["lib/Math.sol:Math"] != common.HexToAddress("0xaa") {
		t.Fatalf("got %v", libs)
	}
	if _, err := ParseLibraries([]string{"lib/Math.sol:Math=0x12"}); err == nil {
		t.Fatalf("short address accepted")
	}
	if _, err := ParseLibraries([]string{"lib/Math.sol:Math"}); err == nil {
		t.Fatalf("missing address accepted")
	}
}

func TestManifest(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "a.yul"), []byte(`object "A" { code { } }`), 0o600); err != nil {
		t.Fatal(err)
	}
	manifest := `
[project]
name = "demo"

[input]
files = ["src/*.yul"]

[output]
allow_placeholders = true

[optimizer]
level = "z"

[libraries]
"lib/L.sol:L" = "0x0000000000000000000000000000000000000001"

[build]
jobs = 3
suppress = ["selfdestruct"]
`
	if err := os.WriteFile(filepath.Join(root, ManifestName), []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}

	m, ok, err := LoadProjectManifest(nested)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	s, err := m.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if s.Optimizer != OptSize || !s.AllowPlaceholders || s.Jobs != 3 || !s.Suppresses(SuppressSelfDestruct) {
		t.Fatalf("settings = %+v", s)
	}
	libs, err := m.LibraryTable()
	if err != nil || len(libs) != 1 {
		t.Fatalf("libraries = %v, %v", libs, err)
	}
	files, err := m.InputFiles()
	if err != nil || len(files) != 1 || filepath.Base(files[0]) != "a.yul" {
		t.Fatalf("inputs = %v, %v", files, err)
	}
	if m.OutputDir() != filepath.Join(root, "out") {
		t.Fatalf("output dir = %s", m.OutputDir())
	}
}

func TestManifestRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte("[project]\nname = \"x\"\n[build]\nthreads = 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Fatalf("unknown key accepted")
	}
}

const standardJSON = `{
  "contracts": {
    "b.yul": {"B": {"yulText": "object \"B\" { code { sstore(0, loadimmutable(\"x\")) } }", "immutables": ["x"]}},
    "a.yul": {"A": {"yulText": "object \"A\" { code { } }"}},
    "c.sol": {"C": {"evmla": {".code": [{"name": "STOP", "begin": 0, "end": 0, "source": 0}]}}}
  },
  "libraries": {"lib/L.sol": {"L": "0x0000000000000000000000000000000000000002"}},
  "settings": {"optimizer": "3", "allowPlaceholders": true, "suppressedErrors": ["pc"]}
}`

func TestLoaderStandardJSON(t *testing.T) {
	fs := source.NewFileSet()
	bag := diag.NewBag(0)
	l := NewLoader(fs, bag)
	if err := l.AddStandardJSON("input.json", []byte(standardJSON)); err != nil {
		t.Fatalf("load: %v", err)
	}
	p, err := l.Finish()
	if err != nil {
		t.Fatalf("finish: %v (%v)", err, bag.Items())
	}
	if len(p.Units) != 3 || p.Units[0].Name != "a.yul:A" || p.Units[2].Name != "c.sol:C" {
		t.Fatalf("units not sorted: %v", names(p.Units))
	}
	b, ok := p.Lookup("b.yul:B")
	if !ok || b.Pipeline() != ir.PipelineYul || len(b.Immutables) != 1 {
		t.Fatalf("unit B = %+v", b)
	}
	c, _ := p.Lookup("c.sol:C")
	if src, ok := c.Source.(*ir.EVMLASource); !ok || src.Text == "" {
		t.Fatalf("evmla listing missing")
	}
	if f := fs.Get(c.File); f == nil || f.Flags&source.FileInstructions == 0 {
		t.Fatalf("evmla unit must point at an instruction listing")
	}
	if p.Settings.Optimizer != OptSpeed || !p.Settings.AllowPlaceholders || !p.Settings.Suppresses(SuppressPC) {
		t.Fatalf("settings = %+v", p.Settings)
	}
	if _, ok := p.Libraries["lib/L.sol:L"]; !ok {
		t.Fatalf("libraries = %v", p.Libraries)
	}
	if p.Index("a.yul:A") != 0 || p.Index("missing:X") != -1 {
		t.Fatalf("index broken")
	}
}

func TestLoaderReportsDuplicatesAndSyntaxErrors(t *testing.T) {
	fs := source.NewFileSet()
	bag := diag.NewBag(0)
	l := NewLoader(fs, bag)
	l.AddYulText("a.yul", []byte(`object "A" { code { } }`))
	l.AddYulText("a.yul", []byte(`object "A" { code { } }`))
	l.AddYulText("bad.yul", []byte(`object "Bad" { code { let } }`))
	if _, err := l.Finish(); err == nil {
		t.Fatalf("expected failure")
	}
	var dup, syntax bool
	for _, d := range bag.Items() {
		switch d.Code {
		case diag.PRJDuplicateContract:
			dup = true
		case diag.IRVMalformedInput:
			syntax = true
		}
	}
	if !dup || !syntax {
		t.Fatalf("diagnostics = %v", bag.Items())
	}
}

func TestCombineIsOrderSensitive(t *testing.T) {
	a, b := DigestBytes([]byte("a")), DigestBytes([]byte("b"))
	if Combine(a, b) == Combine(b, a) {
		t.Fatalf("combine must depend on order")
	}
	if Combine(a, b) != Combine(a, b) {
		t.Fatalf("combine must be deterministic")
	}
}

func names(units []*Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Name
	}
	return out
}

func TestLoaderRootMakesNamesRelative(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "src")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "a.yul")
	if err := os.WriteFile(path, []byte(`object "A" { code { } }`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := NewLoader(source.NewFileSet(), diag.NewBag(0))
	l.Root = root
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	p, err := l.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got := names(p.Units); len(got) != 1 || got[0] != "src/a.yul:A" {
		t.Fatalf("names = %v", got)
	}
}
