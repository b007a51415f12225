// Package buildpipeline orchestrates the compilation of a project: a bounded
// worker pool lowers and assembles every unit, then a single-threaded link
// stage resolves libraries and factory dependencies.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"zkvmc/internal/backend"
	"zkvmc/internal/cache"
	"zkvmc/internal/diag"
	"zkvmc/internal/link"
	"zkvmc/internal/observ"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/symbols"
	"zkvmc/internal/trace"
)

// ErrBuildFailed is returned when at least one unit failed.
var ErrBuildFailed = errors.New("build failed")

// BuildRequest configures one build.
type BuildRequest struct {
	Project *project.Project
	// Backend defaults to backend.Target.
	Backend        backend.Backend
	Cache          *cache.Cache
	Progress       ProgressSink
	Timer          *observ.Timer
	MaxDiagnostics int
}

// Artifact is the output of one contract.
type Artifact struct {
	Name     string
	Bytecode []byte
	// CodeHash is taken over the unlinked artifact, before library
	// addresses are patched in; hashing Bytecode does not reproduce it.
	CodeHash [32]byte
	Assembly string
	LLVM     string
	Native   string
	// FactoryDependencies maps 0x-hex code hash to the dependency path.
	FactoryDependencies map[string]string
	UnresolvedLibraries []link.Placeholder
	Warnings            []diag.Diagnostic
	Cached              bool
}

// BuildResult captures artifacts, diagnostics and timings. Artifacts are in
// sorted-name order and only include the requested contracts.
type BuildResult struct {
	Artifacts []*Artifact
	Failed    []*UnitError
	Bag       *diag.Bag
	Timings   Timings
}

// Build compiles req.Project. A non-nil error with a result means the build
// ran but some unit failed (ErrBuildFailed) or a project error stopped it
// before the parallel phase; other errors are fatal backend failures.
func Build(ctx context.Context, req *BuildRequest) (*BuildResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil || req.Project == nil {
		return nil, fmt.Errorf("missing build request")
	}
	p := req.Project
	result := &BuildResult{Bag: diag.NewBag(req.MaxDiagnostics)}
	if len(p.Units) == 0 {
		return result, fmt.Errorf("no contracts to compile")
	}
	be := req.Backend
	if be == nil {
		be = backend.Target{}
	}

	ctx, span := trace.StartSpan(ctx, trace.ScopeDriver, "build")
	defer span.End(fmt.Sprintf("%d units", len(p.Units)))

	// Project table: built once, read-only afterwards.
	loadStart := time.Now()
	emitStage(req.Progress, "", StageLoad, StatusWorking, nil, 0)
	idx := req.Timer.Begin(string(StageLoad))
	table := symbols.BuildProjectTable(p, result.Bag)
	outputs := selectOutputs(p, result.Bag)
	req.Timer.End(idx, "")
	result.Timings.Set(StageLoad, time.Since(loadStart))
	if result.Bag.HasErrors() {
		err := fmt.Errorf("project has errors")
		emitStage(req.Progress, "", StageLoad, StatusError, err, time.Since(loadStart))
		return result, err
	}
	emitStage(req.Progress, "", StageLoad, StatusDone, nil, time.Since(loadStart))

	names := make([]string, len(p.Units))
	for i, u := range p.Units {
		names[i] = u.Name
	}
	emitQueued(req.Progress, names)

	env := &unitEnv{
		project:  p,
		table:    table,
		backend:  be,
		cache:    req.Cache,
		sink:     req.Progress,
		timer:    req.Timer,
		maxDiags: req.MaxDiagnostics,
	}
	units, err := compileAll(ctx, env, req.Timer, &result.Timings)
	if err != nil {
		return result, err
	}

	linkStart := time.Now()
	emitStage(req.Progress, "", StageLink, StatusWorking, nil, 0)
	idx = req.Timer.Begin(string(StageLink))
	linked := linkAll(ctx, p, units)
	req.Timer.End(idx, "")
	result.Timings.Set(StageLink, time.Since(linkStart))
	emitStage(req.Progress, "", StageLink, StatusDone, nil, time.Since(linkStart))

	outStart := time.Now()
	for i, c := range units {
		lr := linked[c.unit.Name]
		if lr != nil && lr.Failed {
			c.failed = true
		}
		result.Bag.Merge(c.bag)
		warnings := c.bag.Filter(func(d diag.Diagnostic) bool { return d.Severity == diag.SevWarning })
		observ.CountN(observ.Warnings, uint64(len(warnings)))
		if c.failed {
			observ.Count(observ.UnitsFailed)
			result.Failed = append(result.Failed, &UnitError{Unit: c.unit.Name, Diagnostics: c.bag.Items()})
			emitStage(req.Progress, c.unit.Name, StageLink, StatusError, result.Failed[len(result.Failed)-1], 0)
			continue
		}
		observ.Count(observ.UnitsCompiled)
		if !outputs[i] || lr == nil {
			continue
		}
		art := &Artifact{
			Name:                c.unit.Name,
			Bytecode:            lr.Bytecode,
			CodeHash:            lr.CodeHash,
			FactoryDependencies: lr.FactoryDependencies,
			UnresolvedLibraries: lr.Unresolved,
			Warnings:            warnings,
			Cached:              c.cached,
		}
		if p.Settings.EmitAssembly {
			art.Assembly = c.assembly
		}
		if p.Settings.EmitLLVM {
			art.LLVM = c.llvm
		}
		if p.Settings.EmitNative {
			art.Native = c.native
		}
		observ.CountN(observ.BytesEmitted, uint64(len(art.Bytecode)))
		observ.CountN(observ.Placeholders, uint64(len(art.UnresolvedLibraries)))
		result.Artifacts = append(result.Artifacts, art)
		emitStage(req.Progress, c.unit.Name, StageLink, StatusDone, nil, 0)
	}
	result.Timings.Set(StageOutput, time.Since(outStart))

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: %d of %d units failed", ErrBuildFailed, len(result.Failed), len(units))
	}
	return result, nil
}

// compileAll forks one task per unit with at most Jobs running. Results
// land in a slice by unit index, so no locks are needed.
func compileAll(ctx context.Context, env *unitEnv, timer *observ.Timer, timings *Timings) ([]*compiled, error) {
	start := time.Now()
	idx := timer.Begin("compile")
	defer func() {
		timer.End(idx, fmt.Sprintf("%d units", len(env.project.Units)))
		timings.Set(StageLower, time.Since(start))
	}()

	jobs := env.project.Settings.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	units := env.project.Units
	results := make([]*compiled, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(units)))
	for i, u := range units {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := compileUnit(gctx, env, u)
			if err != nil {
				emitStage(env.sink, u.Name, StageAssemble, StatusError, err, 0)
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// linkAll is the barrier stage. Failed units take no part; units that
// depend on them get a missing-dependency error.
func linkAll(ctx context.Context, p *project.Project, units []*compiled) map[string]*link.Result {
	req := link.Request{Libraries: p.Libraries, AllowPlaceholders: p.Settings.AllowPlaceholders}
	for _, c := range units {
		if c.failed {
			continue
		}
		lu := &link.Unit{
			Name:     c.unit.Name,
			Artifact: c.artifact,
			CodeHash: c.codeHash,
			Span:     source.Span{File: c.unit.File},
			Reporter: diag.BagReporter{Bag: c.bag, Unit: c.unit.Name},
		}
		if c.info != nil {
			lu.Libraries = c.info.Libraries
			lu.Dependencies = c.info.DependencyUnits()
		}
		req.Units = append(req.Units, lu)
	}
	libs := make(map[string]int, len(req.Units))
	for _, u := range req.Units {
		libs[u.Name] = len(u.Libraries)
	}
	out := make(map[string]*link.Result, len(req.Units))
	for _, r := range link.Link(ctx, req) {
		out[r.Name] = r
		if n := libs[r.Name] - len(r.Unresolved); !r.Failed && n > 0 {
			observ.CountN(observ.LibrariesLinked, uint64(n))
		}
	}
	return out
}

// selectOutputs marks the units selected by Settings.Contracts; an empty
// list selects every unit. Entries matching no unit are project errors.
func selectOutputs(p *project.Project, bag *diag.Bag) []bool {
	out := make([]bool, len(p.Units))
	for i, u := range p.Units {
		out[i] = p.Settings.Outputs(u.Name)
	}
	rep := diag.BagReporter{Bag: bag}
	for _, c := range p.Settings.Contracts {
		one := project.Settings{Contracts: []string{c}}
		matched := false
		for _, u := range p.Units {
			if one.Outputs(u.Name) {
				matched = true
				break
			}
		}
		if !matched {
			diag.ReportError(rep, diag.PRJUnknownContract, source.Span{},
				fmt.Sprintf("contract %s is not part of the project", c)).Emit()
		}
	}
	return out
}
