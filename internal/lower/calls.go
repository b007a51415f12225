package lower

import (
	"zkvmc/internal/native"
)

func addr(v uint64) native.Operand { return native.U64(v) }

// farCall issues a far call and, when value may be non-zero, routes it
// through the msg-value simulator: extra registers become
// [value, target, system flag, extra...]. The result is the success word.
func (c *Context) farCall(desc native.FarCall, target, gas, inPtr, inLen, value native.Operand, extra ...native.Operand) native.Operand {
	b := c.B
	if value.IsConstU64(0) {
		return b.FarCall(desc, target, gas, inPtr, inLen, extra...)
	}
	viaSimulator := func() native.Operand {
		flag := uint64(0)
		if desc.System {
			flag = 1
		}
		regs := append([]native.Operand{value, target, native.U64(flag)}, extra...)
		return b.FarCall(native.FarCall{Mode: desc.Mode, System: true}, addr(AddrMsgValueSimulator), gas, inPtr, inLen, regs...)
	}
	if value.IsConst() {
		return viaSimulator()
	}
	slot := b.EntryAlloca(1)
	direct, simulated, join := b.NewBlock("call.direct"), b.NewBlock("call.value"), b.NewBlock("call.join")
	b.If(value, simulated, direct)
	b.SetBlock(direct)
	b.Store(native.SpaceStack, slot, b.FarCall(desc, target, gas, inPtr, inLen, extra...))
	b.Goto(join)
	b.SetBlock(simulated)
	b.Store(native.SpaceStack, slot, viaSimulator())
	b.Goto(join)
	b.SetBlock(join)
	return b.Load(native.SpaceStack, slot)
}

// call lowers CALL / STATICCALL / DELEGATECALL. The output window is filled
// with min(outSize, returndatasize) bytes of return data.
func (c *Context) call(mode native.FarMode, gas, target, value, inOff, inSize, outOff, outSize native.Operand) native.Operand {
	b := c.B
	c.touch(inOff, inSize)
	c.touch(outOff, outSize)
	ok := c.farCall(native.FarCall{Mode: mode}, target, c.ergs(gas), c.heapPtr(inOff), inSize, value)
	if !outSize.IsConstU64(0) {
		n := c.minU(outSize, b.Size(native.SpaceReturnData))
		b.Copy(native.SpaceHeap, native.SpaceReturnData, c.heapPtr(outOff), b.Ptr(native.SpaceReturnData, native.U64(0)), n)
	}
	return ok
}

// systemCall invokes a view of a system contract with the selector and
// arguments in registers and returns the first word of its output. A
// failing system contract aborts the frame.
func (c *Context) systemCall(target uint64, signature string, args ...native.Operand) native.Operand {
	b := c.B
	regs := append([]native.Operand{native.Const(Selector(signature))}, args...)
	gas := b.Context(native.CtxGasLeft)
	ok := b.FarCall(native.FarCall{Mode: native.FarStatic, System: true}, addr(target), c.ergs(gas),
		c.heapPtr(native.U64(0)), native.U64(0), regs...)
	cont, fail := b.NewBlock("syscall.ok"), b.NewBlock("syscall.fail")
	b.If(ok, cont, fail)
	b.SetBlock(fail)
	b.Trap("system call failed")
	b.SetBlock(cont)
	return b.Load(native.SpaceReturnData, b.Ptr(native.SpaceReturnData, native.U64(0)))
}

// getter lowers an environment opcode served by a system contract.
func (c *Context) getter(name string, args []native.Operand) native.Operand {
	g := systemGetters[name]
	if name == "selfbalance" {
		args = []native.Operand{c.B.Context(native.CtxAddress)}
	}
	return c.systemCall(g.Addr, g.Signature, args...)
}
