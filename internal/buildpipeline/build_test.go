package buildpipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"zkvmc/internal/asm"
	"zkvmc/internal/cache"
	"zkvmc/internal/diag"
	"zkvmc/internal/link"
	"zkvmc/internal/metadata"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/testkit"
)

type input struct {
	path string
	src  string
}

func load(t *testing.T, settings project.Settings, inputs ...input) *project.Project {
	t.Helper()
	bag := diag.NewBag(0)
	ld := project.NewLoader(source.NewFileSet(), bag)
	ld.Settings = settings
	for _, in := range inputs {
		ld.AddYulText(in.path, []byte(in.src))
	}
	p, err := ld.Finish()
	if err != nil {
		t.Fatalf("load: %v (%v)", err, bag.Items())
	}
	return p
}

func build(t *testing.T, p *project.Project) (*BuildResult, error) {
	t.Helper()
	return Build(context.Background(), &BuildRequest{Project: p})
}

func mustBuild(t *testing.T, p *project.Project) *BuildResult {
	t.Helper()
	res, err := build(t, p)
	if err != nil {
		t.Fatalf("build: %v (%v)", err, res.Bag.Items())
	}
	return res
}

func artifact(t *testing.T, res *BuildResult, name string) *Artifact {
	t.Helper()
	for _, a := range res.Artifacts {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("no artifact %s", name)
	return nil
}

func counter(i int) input {
	name := fmt.Sprintf("C%02d", i)
	return input{
		path: fmt.Sprintf("u%02d.yul", i),
		src: testkit.RuntimeYul(name, fmt.Sprintf(
			`sstore(0, add(sload(0), %d)) mstore(0, sload(0)) return(0, 32)`, i+1)),
	}
}

const libSrc = `object "Math" { code { return(0, 0) } object "Math_deployed" { code { mstore(0, 7) return(0, 32) } } }`

const appSrc = `object "App" {
  code { return(0, 0) }
  object "App_deployed" {
    code { mstore(0, linkersymbol("lib.yul:Math")) return(0, 32) }
  }
}`

const factorySrc = `object "Factory" {
  code { return(0, 0) }
  object "Factory_deployed" {
    code {
      datacopy(0, dataoffset("Child"), datasize("Child"))
      mstore(0, create2(0, 0, datasize("Child"), 42))
      return(0, 32)
    }
    object "Child" { code { } }
  }
}`

const childSrc = `object "Child" { code { return(0, 0) } object "Child_deployed" { code { stop() } } }`

func TestBuildIsDeterministic(t *testing.T) {
	inputs := []input{counter(0), counter(1), {"lib.yul", libSrc}, {"app.yul", appSrc}}
	settings := project.Settings{Optimizer: project.OptSpeed, EmitAssembly: true}
	first := mustBuild(t, load(t, settings, inputs...))
	second := mustBuild(t, load(t, settings, inputs...))
	if len(first.Artifacts) != len(second.Artifacts) {
		t.Fatalf("artifact count differs")
	}
	for i, a := range first.Artifacts {
		b := second.Artifacts[i]
		if a.Name != b.Name || !bytes.Equal(a.Bytecode, b.Bytecode) || a.CodeHash != b.CodeHash || a.Assembly != b.Assembly {
			t.Fatalf("%s differs between builds", a.Name)
		}
	}
}

func TestParallelBuildMatchesIndividualBuilds(t *testing.T) {
	const n = 50
	inputs := make([]input, n)
	for i := range inputs {
		inputs[i] = counter(i)
	}
	all := mustBuild(t, load(t, project.Settings{Jobs: 8, Optimizer: project.OptSize}, inputs...))
	if len(all.Artifacts) != n {
		t.Fatalf("artifacts = %d, want %d", len(all.Artifacts), n)
	}
	for i, in := range inputs {
		one := mustBuild(t, load(t, project.Settings{Jobs: 1, Optimizer: project.OptSize}, in))
		want := one.Artifacts[0]
		got := all.Artifacts[i]
		if got.Name != want.Name {
			t.Fatalf("artifact %d is %s, want %s", i, got.Name, want.Name)
		}
		if !bytes.Equal(got.Bytecode, want.Bytecode) {
			t.Fatalf("%s: parallel output differs from individual output", got.Name)
		}
	}
}

func TestLibraryLinking(t *testing.T) {
	res := mustBuild(t, load(t, project.Settings{}, input{"lib.yul", libSrc}, input{"app.yul", appSrc}))
	app := artifact(t, res, "app.yul:App")
	if len(app.UnresolvedLibraries) != 0 || bytes.Contains(app.Bytecode, asm.LibraryPrefix) {
		t.Fatalf("library marker left in linked code")
	}
	lib := artifact(t, res, "lib.yul:Math")
	addr := link.PredictableAddress(lib.CodeHash)
	if !bytes.Contains(app.Bytecode, addr.Bytes()) {
		t.Fatalf("predictable address %s not patched in", addr)
	}
	// code hash stays on the unlinked artifact
	if h, err := metadata.CodeHash(app.Bytecode); err != nil || h == app.CodeHash {
		t.Fatalf("code hash follows linked bytecode: %x, %v", h, err)
	}
	if h, _ := metadata.CodeHash(lib.Bytecode); h != lib.CodeHash {
		t.Fatalf("library without markers: hash %x, want %x", h, lib.CodeHash)
	}

	res = mustBuild(t, load(t, project.Settings{AllowPlaceholders: true}, input{"app.yul", appSrc}))
	app = artifact(t, res, "app.yul:App")
	if len(app.UnresolvedLibraries) != 1 || len(app.UnresolvedLibraries[0].Offsets) != 1 {
		t.Fatalf("unresolved = %+v, want one marker", app.UnresolvedLibraries)
	}
	if len(app.Warnings) != 1 || app.Warnings[0].Code != diag.ADVUnresolvedPlaceholder {
		t.Fatalf("warnings = %v", app.Warnings)
	}

	res, err := build(t, load(t, project.Settings{}, input{"app.yul", appSrc}))
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("err = %v, want ErrBuildFailed", err)
	}
	if len(res.Failed) != 1 || res.Failed[0].Unit != "app.yul:App" {
		t.Fatalf("failed = %+v", res.Failed)
	}
}

func TestFactoryDependencyHash(t *testing.T) {
	res := mustBuild(t, load(t, project.Settings{}, input{"f.yul", factorySrc}, input{"c.yul", childSrc}))
	f := artifact(t, res, "f.yul:Factory")
	child := artifact(t, res, "c.yul:Child")
	if len(f.FactoryDependencies) != 1 {
		t.Fatalf("factory deps = %v", f.FactoryDependencies)
	}
	for h, path := range f.FactoryDependencies {
		if path != "c.yul:Child" || h != fmt.Sprintf("0x%x", child.CodeHash) {
			t.Fatalf("factory dep %s -> %s", h, path)
		}
	}
	if !bytes.Contains(f.Bytecode, child.CodeHash[:]) || bytes.Contains(f.Bytecode, asm.FactoryPrefix) {
		t.Fatalf("factory marker not patched")
	}
}

func TestFailedUnitDoesNotStopSiblings(t *testing.T) {
	bad := input{"bad.yul", testkit.RuntimeYul("Bad", `selfdestruct(0)`)}
	res, err := build(t, load(t, project.Settings{Jobs: 2}, bad, counter(1), counter(2)))
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0].Unit != "bad.yul:Bad" {
		t.Fatalf("failed = %+v", res.Failed)
	}
	if len(res.Artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(res.Artifacts))
	}
	found := false
	for _, d := range res.Bag.Items() {
		if d.Code == diag.UNSSelfDestruct && d.Unit == "bad.yul:Bad" {
			found = true
		}
	}
	if !found {
		t.Fatalf("selfdestruct not reported: %v", res.Bag.Items())
	}
}

func TestCacheReusesUnits(t *testing.T) {
	c, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	inputs := []input{counter(3), {"lib.yul", libSrc}, {"app.yul", appSrc}}
	req := func() *BuildRequest {
		return &BuildRequest{Project: load(t, project.Settings{}, inputs...), Cache: c}
	}
	cold, err := Build(context.Background(), req())
	if err != nil {
		t.Fatalf("cold build: %v", err)
	}
	warm, err := Build(context.Background(), req())
	if err != nil {
		t.Fatalf("warm build: %v", err)
	}
	for i, a := range warm.Artifacts {
		if !a.Cached {
			t.Fatalf("%s was not taken from the cache", a.Name)
		}
		if cold.Artifacts[i].Cached || !bytes.Equal(a.Bytecode, cold.Artifacts[i].Bytecode) {
			t.Fatalf("%s: cached output differs", a.Name)
		}
	}
}

func TestCacheKeepsRequestedDumps(t *testing.T) {
	c, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	build := func(s project.Settings) *BuildResult {
		t.Helper()
		res, err := Build(context.Background(), &BuildRequest{Project: load(t, s, counter(1)), Cache: c})
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return res
	}
	plain := build(project.Settings{})
	if plain.Artifacts[0].Native != "" {
		t.Fatalf("native dump without emit_native")
	}
	// a plain entry must not satisfy a build that asks for the dump
	cold := build(project.Settings{EmitNative: true})
	if cold.Artifacts[0].Cached || cold.Artifacts[0].Native == "" {
		t.Fatalf("cold: cached=%v native=%d bytes", cold.Artifacts[0].Cached, len(cold.Artifacts[0].Native))
	}
	warm := build(project.Settings{EmitNative: true})
	a := warm.Artifacts[0]
	if !a.Cached {
		t.Fatalf("%s was not taken from the cache", a.Name)
	}
	if a.Native != cold.Artifacts[0].Native {
		t.Fatalf("cached native dump = %q, want %q", a.Native, cold.Artifacts[0].Native)
	}
}

func TestContractsFilter(t *testing.T) {
	res := mustBuild(t, load(t, project.Settings{Contracts: []string{"u01.yul:C01"}}, counter(0), counter(1)))
	if len(res.Artifacts) != 1 || res.Artifacts[0].Name != "u01.yul:C01" {
		t.Fatalf("artifacts = %v", res.Artifacts)
	}

	res, err := build(t, load(t, project.Settings{Contracts: []string{"nope.yul:X"}}, counter(0)))
	if err == nil {
		t.Fatalf("unknown contract accepted")
	}
	if items := res.Bag.Items(); len(items) != 1 || items[0].Code != diag.PRJUnknownContract {
		t.Fatalf("diagnostics = %v", items)
	}
}

func TestProgressEvents(t *testing.T) {
	sink := &RecordingSink{}
	_, err := Build(context.Background(), &BuildRequest{
		Project:  load(t, project.Settings{Jobs: 4}, counter(0), counter(1), counter(2)),
		Progress: sink,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	done := make(map[string]bool)
	linkDone := false
	for _, ev := range sink.Events() {
		if ev.Stage == StageAssemble && ev.Status == StatusDone {
			done[ev.Unit] = true
		}
		if ev.Unit == "" && ev.Stage == StageLink && ev.Status == StatusDone {
			linkDone = true
		}
	}
	if len(done) != 3 || !linkDone {
		t.Fatalf("assembled = %v, link done = %v", done, linkDone)
	}
}

func TestWriteArtifacts(t *testing.T) {
	res := mustBuild(t, load(t, project.Settings{EmitAssembly: true}, counter(0)))
	dir := t.TempDir()
	written, err := WriteArtifacts(dir, res.Artifacts)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("written = %v", written)
	}
	bin, err := os.ReadFile(filepath.Join(dir, "u00.yul", "C00.zbin"))
	if err != nil || !bytes.Equal(bin, res.Artifacts[0].Bytecode) {
		t.Fatalf("zbin: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, OutputFile)); err != nil {
		t.Fatalf("combined json: %v", err)
	}
}

func TestArtifactBaseStaysInsideDir(t *testing.T) {
	got, err := artifactBase("out", "../../etc/x.yul:C")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("out", "etc", "x.yul", "C"); got != want {
		t.Fatalf("base = %s, want %s", got, want)
	}
}
