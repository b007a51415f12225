// Package backend turns native modules into target assembly: the pass
// pipeline, instruction selection and the LLVM text dump.
package backend

import (
	"context"
	"fmt"

	"zkvmc/internal/diag"
	"zkvmc/internal/native"
	"zkvmc/internal/project"
	"zkvmc/internal/trace"
)

// Backend is the code generator bridge used by the build pipeline.
type Backend interface {
	NewModule(unit string) *native.Module
	RunPasses(ctx context.Context, mod *native.Module, level project.OptLevel) error
	EmitAssembly(ctx context.Context, mod *native.Module) (string, error)
}

// Target is the register machine backend.
type Target struct{}

var _ Backend = Target{}

func (Target) NewModule(unit string) *native.Module { return native.NewModule(unit) }

// AssemblyError is a code generation failure. Block and Instr are -1 when
// the failure concerns the whole function or module.
type AssemblyError struct {
	Code  diag.Code
	Unit  string
	Func  string
	Block int
	Instr int
	Err   error
}

func (e *AssemblyError) Error() string {
	where := e.Unit
	if e.Func != "" {
		where += " @" + e.Func
	}
	if e.Block >= 0 {
		where += fmt.Sprintf(" bb%d", e.Block)
	}
	if e.Instr >= 0 {
		where += fmt.Sprintf(" #%d", e.Instr)
	}
	return fmt.Sprintf("%s: %s: %v", where, e.Code.ID(), e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

type pass struct {
	name string
	run  func(*native.Func) bool
}

var (
	sizePasses = []pass{
		{"simplify-cfg", SimplifyCFG},
		{"const-fold", ConstFold},
		{"dce", DCE},
		{"simplify-cfg", SimplifyCFG},
	}
	speedPasses = []pass{
		{"forward-slots", ForwardSlots},
		{"const-fold", ConstFold},
		{"dce", DCE},
		{"simplify-cfg", SimplifyCFG},
	}
)

// Pipeline lists the pass names run at level, in order.
func Pipeline(level project.OptLevel) []string {
	var out []string
	for _, p := range passesFor(level) {
		out = append(out, p.name)
	}
	return out
}

func passesFor(level project.OptLevel) []pass {
	switch level {
	case project.OptSize:
		return sizePasses
	case project.OptSpeed:
		// size passes, then forwarding, then the size round again
		var out []pass
		out = append(out, sizePasses...)
		out = append(out, speedPasses...)
		return append(out, sizePasses...)
	}
	return nil
}

// RunPasses optimises mod at level and validates the result.
func (Target) RunPasses(ctx context.Context, mod *native.Module, level project.OptLevel) error {
	_, span := trace.StartSpan(ctx, trace.ScopeModule, "passes")
	defer span.End(mod.Unit)
	passes := passesFor(level)
	for _, f := range mod.Funcs {
		for _, p := range passes {
			p.run(f)
		}
	}
	if err := native.Validate(mod); err != nil {
		return &AssemblyError{Code: diag.ASMMalformedModule, Unit: mod.Unit, Block: -1, Instr: -1, Err: err}
	}
	return nil
}
