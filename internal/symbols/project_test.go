package symbols

import (
	"testing"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir"
	"zkvmc/internal/ir/yul"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
)

func yulUnit(t *testing.T, fs *source.FileSet, name, src string) *project.Unit {
	t.Helper()
	file := fs.AddVirtual(name, []byte(src))
	obj, err := yul.ParseText(name, []byte(src), file)
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	path, contract, err := project.SplitName(name)
	if err != nil {
		t.Fatal(err)
	}
	return &project.Unit{Name: name, Path: path, Contract: contract, Source: yulSource(obj), File: file}
}

const factorySrc = `object "Factory" {
  code {
    setimmutable(0, "owner", caller())
    setimmutable(0, "created", 1)
    datacopy(0, dataoffset("Child"), datasize("Child"))
    return(0, 0)
  }
  object "Factory_deployed" {
    code {
      sstore(0, loadimmutable("owner"))
      sstore(1, linkersymbol("lib/Math.sol:Math"))
    }
  }
  object "Child" { code { } }
}`

const childSrc = `object "Child" { code { return(0, 0) } object "Child_deployed" { code { } } }`

const mathSrc = `object "Math" { code { return(0, 0) } object "Math_deployed" { code { } } }`

func TestBuildProjectTable(t *testing.T) {
	fs := source.NewFileSet()
	p := project.NewProject(fs, []*project.Unit{
		yulUnit(t, fs, "f.yul:Factory", factorySrc),
		yulUnit(t, fs, "c.yul:Child", childSrc),
		yulUnit(t, fs, "lib/Math.sol:Math", mathSrc),
	}, nil, project.Settings{})
	bag := diag.NewBag(0)
	table := BuildProjectTable(p, bag)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}

	f, ok := table.Unit("f.yul:Factory")
	if !ok {
		t.Fatal("factory missing")
	}
	if len(f.Immutables) != 2 || f.Immutables[0] != "created" || f.Immutables[1] != "owner" {
		t.Fatalf("immutables = %v", f.Immutables)
	}
	if off, ok := f.ImmutableOffset("owner"); !ok || off != 32 {
		t.Fatalf("owner offset = %d %v", off, ok)
	}
	if dep, ok := f.ResolveDependency("Child"); !ok || dep != "c.yul:Child" {
		t.Fatalf("Child resolved to %q", dep)
	}
	if len(f.Libraries) != 1 || f.Libraries[0] != "lib/Math.sol:Math" {
		t.Fatalf("libraries = %v", f.Libraries)
	}
	if !table.IsLibrary("lib/Math.sol:Math") || table.IsLibrary("c.yul:Child") {
		t.Fatalf("library kinds wrong")
	}
	if got := table.Units()[0].Name; got != "c.yul:Child" {
		t.Fatalf("units not in project order: %s", got)
	}
}

func TestBuildProjectTableMissingDependency(t *testing.T) {
	fs := source.NewFileSet()
	p := project.NewProject(fs, []*project.Unit{yulUnit(t, fs, "f.yul:Factory", factorySrc)}, nil, project.Settings{})
	bag := diag.NewBag(0)
	BuildProjectTable(p, bag)
	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.LNKMissingDependency || items[0].Unit != "f.yul:Factory" {
		t.Fatalf("diagnostics = %v", items)
	}
}

func yulSource(obj *yul.Object) *ir.YulSource { return &ir.YulSource{Object: obj} }
