package lower

import (
	"context"
	"fmt"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir"
	"zkvmc/internal/native"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/symbols"
	"zkvmc/internal/trace"
)

// Segment is the code segment being lowered.
type Segment uint8

const (
	SegDeploy Segment = iota
	SegRuntime
)

func (s Segment) String() string {
	if s == SegDeploy {
		return "deploy"
	}
	return "runtime"
}

// Request is one unit to lower.
type Request struct {
	Unit     *project.Unit
	Project  *symbols.ProjectTable
	Settings project.Settings
	Reporter diag.Reporter
	// StackBudget bounds the legacy assembly stack height; 0 means the
	// default of 1024.
	StackBudget int
}

// Context is the lowering state of one unit. It is created per unit and
// never shared between goroutines.
type Context struct {
	Unit     *project.Unit
	Info     *symbols.UnitInfo
	Project  *symbols.ProjectTable
	Settings project.Settings
	Module   *native.Module
	Segment  Segment
	B        *native.FuncBuilder
	Rep      diag.Reporter

	stackBudget int
	failed      bool
	// selfNames are the object names whose data offset and size are 0.
	selfNames map[string]struct{}
}

// Unit lowers req.Unit into a native module. ok is false when an error was
// reported; the partial module must be discarded then.
func Unit(ctx context.Context, req Request) (*native.Module, bool) {
	_, span := trace.StartSpan(ctx, trace.ScopeModule, "lower")
	defer span.End(req.Unit.Name)

	c := newContext(req)
	entry := c.Module.AddFunc("__entry", 0, 0)
	c.Module.Entry = entry.ID
	deploy := c.Module.AddFunc("deploy", 0, 0)
	runtime := c.Module.AddFunc("runtime", 0, 0)

	eb := native.NewFuncBuilder(entry)
	ctor := eb.Context(native.CtxIsConstructor)
	dBlk, rBlk := eb.NewBlock("deploy"), eb.NewBlock("runtime")
	eb.If(ctor, dBlk, rBlk)
	eb.SetBlock(dBlk)
	eb.Call(deploy)
	eb.Unreachable()
	eb.SetBlock(rBlk)
	eb.Call(runtime)
	eb.Unreachable()

	switch src := req.Unit.Source.(type) {
	case *ir.YulSource:
		lowerYulObject(c, src, deploy, runtime)
	case *ir.EVMLASource:
		lowerEVMLA(c, src, deploy, runtime)
	default:
		c.errorf(diag.IRVMalformedInput, source.Span{File: req.Unit.File}, "unit has no source")
	}
	if c.failed {
		return nil, false
	}
	if err := native.Validate(c.Module); err != nil {
		// a lowering rule produced an ill-formed module
		c.errorf(diag.ASMMalformedModule, source.Span{File: req.Unit.File}, "%v", err)
		return nil, false
	}
	return c.Module, true
}

func newContext(req Request) *Context {
	rep := req.Reporter
	if rep == nil {
		rep = diag.NopReporter{}
	}
	c := &Context{
		Unit:        req.Unit,
		Project:     req.Project,
		Settings:    req.Settings,
		Module:      native.NewModule(req.Unit.Name),
		Rep:         diag.NewDedupReporter(rep),
		stackBudget: req.StackBudget,
		selfNames:   make(map[string]struct{}),
	}
	if req.Project != nil {
		c.Info, _ = req.Project.Unit(req.Unit.Name)
	}
	if c.Info == nil {
		c.Info = &symbols.UnitInfo{Name: req.Unit.Name, Dependencies: map[string]string{}}
	}
	return c
}

func (c *Context) errorf(code diag.Code, sp source.Span, format string, args ...any) {
	c.failed = true
	diag.ReportError(c.Rep, code, sp, fmt.Sprintf(format, args...)).Emit()
}

func (c *Context) warnf(code diag.Code, sp source.Span, format string, args ...any) {
	diag.ReportWarning(c.Rep, code, sp, fmt.Sprintf(format, args...)).Emit()
}

// Failed reports whether an error has been reported.
func (c *Context) Failed() bool { return c.failed }

// enter switches the builder to f for segment seg.
func (c *Context) enter(seg Segment, f *native.Func) {
	c.Segment = seg
	c.B = native.NewFuncBuilder(f)
}

// exitEnd terminates the fall-off end of a segment: STOP, which in deploy
// code commits the immutables.
func (c *Context) exitEnd() {
	if c.B.Terminated() {
		return
	}
	if c.Segment == SegDeploy {
		c.B.Exit(native.ExitDeploy, native.SpaceHeap, native.Operand{}, native.Operand{})
		return
	}
	c.B.Exit(native.ExitStop, native.SpaceHeap, native.Operand{}, native.Operand{})
}

// zero is the placeholder result of a rejected construct.
func zero() native.Operand { return native.U64(0) }
