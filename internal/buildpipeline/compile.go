package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zkvmc/internal/asm"
	"zkvmc/internal/backend"
	"zkvmc/internal/cache"
	"zkvmc/internal/diag"
	"zkvmc/internal/lower"
	"zkvmc/internal/metadata"
	"zkvmc/internal/native"
	"zkvmc/internal/observ"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/symbols"
	"zkvmc/internal/trace"
)

// UnitError marks a unit that failed with per-unit diagnostics. Sibling
// units keep compiling; the build as a whole fails.
type UnitError struct {
	Unit        string
	Diagnostics []diag.Diagnostic
}

func (e *UnitError) Error() string {
	for _, d := range e.Diagnostics {
		if d.Severity >= diag.SevError {
			return fmt.Sprintf("%s: %s: %s", e.Unit, d.Code.ID(), d.Message)
		}
	}
	return e.Unit + ": failed"
}

// compiled is the immutable per-unit result of the parallel phase.
type compiled struct {
	unit     *project.Unit
	info     *symbols.UnitInfo
	bag      *diag.Bag
	failed   bool
	cached   bool
	artifact []byte
	codeHash [32]byte
	assembly string
	llvm     string
	native   string
}

// unitEnv is what every worker reads; nothing in it is written after fork.
type unitEnv struct {
	project  *project.Project
	table    *symbols.ProjectTable
	backend  backend.Backend
	cache    *cache.Cache
	sink     ProgressSink
	timer    *observ.Timer
	maxDiags int
}

// compileUnit runs lower -> passes -> emit -> assemble -> metadata for one
// unit. Per-unit failures are recorded in the result; the returned error is
// fatal for the whole build.
func compileUnit(ctx context.Context, env *unitEnv, u *project.Unit) (*compiled, error) {
	ctx, span := trace.StartSpan(ctx, trace.ScopeModule, "unit")
	defer span.End(u.Name)

	res := &compiled{unit: u, bag: diag.NewBag(env.maxDiags)}
	res.info, _ = env.table.Unit(u.Name)
	rep := diag.BagReporter{Bag: res.bag, Unit: u.Name}
	settings := env.project.Settings
	meta := metadata.NewSettings(u.Pipeline().String(), settings)

	var key project.Digest
	if env.cache != nil {
		k, err := cache.Key(u, res.info, meta, cache.Dumps{LLVM: settings.EmitLLVM, Native: settings.EmitNative})
		if err != nil {
			return nil, err
		}
		key = k
		var e cache.Entry
		if ok, err := env.cache.Get(key, &e); err == nil && ok && e.Name == u.Name {
			res.cached = true
			res.artifact = e.Artifact
			res.codeHash = e.CodeHash
			res.assembly = e.Assembly
			res.llvm = e.LLVM
			res.native = e.Native
			cache.Replay(rep, u.File, e.Warnings)
			observ.Count(observ.UnitsCached)
			emitStage(env.sink, u.Name, StageAssemble, StatusCached, nil, 0)
			return res, nil
		}
	}

	start := time.Now()
	emitStage(env.sink, u.Name, StageLower, StatusWorking, nil, 0)
	mod, ok := lower.Unit(ctx, lower.Request{
		Unit:     u,
		Project:  env.table,
		Settings: settings,
		Reporter: rep,
	})
	env.timer.Add(string(StageLower), time.Since(start))
	if !ok {
		res.failed = true
		emitStage(env.sink, u.Name, StageLower, StatusError, &UnitError{Unit: u.Name, Diagnostics: res.bag.Items()}, time.Since(start))
		return res, nil
	}

	step := time.Now()
	emitStage(env.sink, u.Name, StageOptimize, StatusWorking, nil, 0)
	if err := env.backend.RunPasses(ctx, mod, settings.Optimizer); err != nil {
		return nil, err
	}
	env.timer.Add(string(StageOptimize), time.Since(step))
	if settings.EmitNative {
		res.native = native.String(mod)
	}
	if settings.EmitLLVM {
		ll, err := backend.EmitLLVM(mod)
		if err != nil {
			diag.ReportWarning(rep, diag.ADVInfo, source.Span{File: u.File},
				fmt.Sprintf("LLVM dump skipped: %v", err)).Emit()
		}
		res.llvm = ll
	}

	step = time.Now()
	emitStage(env.sink, u.Name, StageEmit, StatusWorking, nil, 0)
	text, err := env.backend.EmitAssembly(ctx, mod)
	if err != nil {
		var ae *backend.AssemblyError
		if errors.As(err, &ae) && ae.Code.Category() == diag.CatResource {
			return res.fail(env, rep, ae.Code, err.Error()), nil
		}
		return nil, err
	}
	res.assembly = text
	env.timer.Add(string(StageEmit), time.Since(step))

	step = time.Now()
	emitStage(env.sink, u.Name, StageAssemble, StatusWorking, nil, 0)
	bin, err := asm.Assemble(text)
	if err != nil {
		var ae *asm.Error
		if errors.As(err, &ae) && ae.Code.Category() == diag.CatResource {
			return res.fail(env, rep, ae.Code, ae.Msg), nil
		}
		return nil, fmt.Errorf("%s: %w", u.Name, err)
	}
	art, err := metadata.Append(bin.Code, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u.Name, err)
	}
	h, err := metadata.CodeHash(art)
	if err != nil {
		return res.fail(env, rep, diag.RESCodeTooLarge, err.Error()), nil
	}
	res.artifact, res.codeHash = art, h
	env.timer.Add(string(StageAssemble), time.Since(step))
	emitStage(env.sink, u.Name, StageAssemble, StatusDone, nil, time.Since(start))

	if env.cache != nil {
		e := &cache.Entry{
			Name:     u.Name,
			Artifact: res.artifact,
			CodeHash: res.codeHash,
			Assembly: res.assembly,
			LLVM:     res.llvm,
			Native:   res.native,
			Warnings: cache.Warnings(res.bag.Items()),
		}
		if err := env.cache.Put(key, e); err != nil {
			// кэш не обязателен для сборки
			diag.ReportWarning(rep, diag.ADVInfo, source.Span{File: u.File}, "cache write failed: "+err.Error()).Emit()
		}
	}
	return res, nil
}

func (c *compiled) fail(env *unitEnv, rep diag.Reporter, code diag.Code, msg string) *compiled {
	diag.ReportError(rep, code, source.Span{File: c.unit.File}, msg).Emit()
	c.failed = true
	emitStage(env.sink, c.unit.Name, StageAssemble, StatusError, &UnitError{Unit: c.unit.Name, Diagnostics: c.bag.Items()}, 0)
	return c
}
