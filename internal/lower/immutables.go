package lower

import (
	"zkvmc/internal/diag"
	"zkvmc/internal/ir/evmla"
	"zkvmc/internal/ir/yul"
	"zkvmc/internal/native"
	"zkvmc/internal/source"
)

// immutableChecker enforces, in source order over deploy code, that every
// immutable is written once before it is read.
type immutableChecker struct {
	c       *Context
	written map[string]source.Span
}

func newImmutableChecker(c *Context) *immutableChecker {
	return &immutableChecker{c: c, written: make(map[string]source.Span)}
}

func (k *immutableChecker) known(name string, sp source.Span) bool {
	if _, ok := k.c.Info.ImmutableOffset(name); !ok {
		k.c.errorf(diag.IRVUnknownImmutable, sp, "immutable %q is not declared by the unit", name)
		return false
	}
	return true
}

func (k *immutableChecker) write(name string, sp source.Span) {
	if !k.known(name, sp) {
		return
	}
	if prev, dup := k.written[name]; dup {
		k.c.failed = true
		diag.ReportError(k.c.Rep, diag.LNKAmbiguousImmutable, sp, "immutable "+name+" is assigned more than once").
			WithNote(prev, "first assignment").Emit()
		return
	}
	k.written[name] = sp
}

func (k *immutableChecker) read(name string, sp source.Span) {
	if !k.known(name, sp) {
		return
	}
	if _, ok := k.written[name]; !ok {
		k.c.errorf(diag.IRVImmutableBeforeWrite, sp, "immutable %s is read before it is assigned in the constructor", name)
	}
}

func (k *immutableChecker) runtimeWrite(name string, sp source.Span) {
	k.c.errorf(diag.IRVImmutableInRuntime, sp, "immutable %s is assigned in runtime code", name)
}

func checkYulImmutables(c *Context, deploy, runtime *yul.Object) {
	k := newImmutableChecker(c)
	visit := func(obj *yul.Object, seg Segment) {
		if obj == nil || obj.Code == nil {
			return
		}
		yul.Walk(obj.Code, func(n yul.Node) bool {
			call, ok := n.(*yul.FunctionCall)
			if !ok {
				return true
			}
			switch call.Name {
			case "setimmutable":
				// the value is evaluated before the assignment happens
				if len(call.Args) == 3 {
					yul.Walk(call.Args[2], func(inner yul.Node) bool {
						if ic, ok := inner.(*yul.FunctionCall); ok && ic.Name == "loadimmutable" {
							if name, ok := yul.LiteralArg(ic, 0); ok && seg == SegDeploy {
								k.read(name, ic.Src)
							}
						}
						return true
					})
				}
				name, ok := yul.LiteralArg(call, 1)
				if !ok {
					return false
				}
				if seg == SegRuntime {
					k.runtimeWrite(name, call.Src)
				} else {
					k.write(name, call.Src)
				}
				return false
			case "loadimmutable":
				name, ok := yul.LiteralArg(call, 0)
				if !ok {
					return true
				}
				if seg == SegDeploy {
					k.read(name, call.Src)
				} else {
					k.known(name, call.Src)
				}
			}
			return true
		})
	}
	visit(deploy, SegDeploy)
	visit(runtime, SegRuntime)
}

func checkEVMLAImmutables(c *Context, deploy, runtime []evmla.Instruction, file source.FileID) {
	k := newImmutableChecker(c)
	visit := func(code []evmla.Instruction, base int, seg Segment) {
		for i, in := range code {
			sp := source.AtIndex(file, base+i)
			switch in.Name {
			case evmla.NameAssignImmutable:
				if seg == SegRuntime {
					k.runtimeWrite(in.Value, sp)
				} else {
					k.write(in.Value, sp)
				}
			case evmla.NamePushImmutable:
				if seg == SegDeploy {
					k.read(in.Value, sp)
				} else {
					k.known(in.Value, sp)
				}
			}
		}
	}
	visit(deploy, 0, SegDeploy)
	visit(runtime, len(deploy), SegRuntime)
}

func (c *Context) immutablePtr(name string) (native.Operand, bool) {
	off, ok := c.Info.ImmutableOffset(name)
	if !ok {
		return native.Operand{}, false
	}
	return c.B.Ptr(native.SpaceImmutables, native.U64(off)), true
}

// setImmutable stores v at the immutable's reserved offset. The checkers
// have already reported misuse; lowering only emits.
func (c *Context) setImmutable(name string, v native.Operand) {
	if c.Segment != SegDeploy {
		return
	}
	if p, ok := c.immutablePtr(name); ok {
		c.B.Store(native.SpaceImmutables, p, v)
	}
}

func (c *Context) loadImmutable(name string) native.Operand {
	p, ok := c.immutablePtr(name)
	if !ok {
		return zero()
	}
	return c.B.Load(native.SpaceImmutables, p)
}
