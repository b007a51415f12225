package lower

import (
	"zkvmc/internal/native"
)

func (c *Context) heapPtr(off native.Operand) native.Operand {
	return c.B.Ptr(native.SpaceHeap, off)
}

func (c *Context) msizeGlobal() native.GlobalID {
	return c.Module.AddGlobal(globalMsize)
}

// touch raises the tracked memory size to cover [off, off+n) rounded up to
// whole words. An access of zero bytes does not expand memory.
func (c *Context) touch(off, n native.Operand) {
	if n.IsConstU64(0) {
		return
	}
	b := c.B
	g := c.msizeGlobal()
	end := b.Bin(native.OpAdd, off, n)
	rounded := b.Bin(native.OpAnd, b.Bin(native.OpAdd, end, native.U64(31)), b.Not(native.U64(31)))
	if !n.IsConst() {
		rounded = b.Select(b.IsZero(n), native.U64(0), rounded)
	}
	cur := b.GlobalGet(g)
	b.GlobalSet(g, b.Select(b.Cmp(native.OpUGt, rounded, cur), rounded, cur))
}

func (c *Context) mload(off native.Operand) native.Operand {
	c.touch(off, native.U64(32))
	return c.B.Load(native.SpaceHeap, c.heapPtr(off))
}

func (c *Context) mstore(off, v native.Operand) {
	c.touch(off, native.U64(32))
	c.B.Store(native.SpaceHeap, c.heapPtr(off), v)
}

func (c *Context) mstore8(off, v native.Operand) {
	c.touch(off, native.U64(1))
	c.B.Store8(native.SpaceHeap, c.heapPtr(off), v)
}

func (c *Context) msize() native.Operand {
	return c.B.GlobalGet(c.msizeGlobal())
}

func (c *Context) mcopy(dst, src, n native.Operand) {
	c.touch(src, n)
	c.touch(dst, n)
	c.B.Copy(native.SpaceHeap, native.SpaceHeap, c.heapPtr(dst), c.heapPtr(src), n)
}

func (c *Context) keccak(off, n native.Operand) native.Operand {
	c.touch(off, n)
	return c.B.Keccak(native.SpaceHeap, c.heapPtr(off), n)
}

// copyIn copies n bytes of a read-only space into the heap.
func (c *Context) copyIn(src native.Space, dst, off, n native.Operand) {
	c.touch(dst, n)
	c.B.Copy(native.SpaceHeap, src, c.heapPtr(dst), c.B.Ptr(src, off), n)
}

func (c *Context) calldataLoad(off native.Operand) native.Operand {
	return c.B.Load(native.SpaceCalldata, c.B.Ptr(native.SpaceCalldata, off))
}

func (c *Context) log(off, n native.Operand, topics []native.Operand) {
	c.touch(off, n)
	c.B.Log(native.SpaceHeap, c.heapPtr(off), n, topics...)
}

// exit ends the contract frame with the heap range [off, off+n). In deploy
// code RETURN hands back the runtime code on the EVM; here the runtime is
// deployed separately, so it commits the immutables instead. STOP does the
// same: the runtime object is deployed even though the EVM would deploy
// empty code.
func (c *Context) exit(kind native.ExitKind, off, n native.Operand) {
	if c.Segment == SegDeploy && (kind == native.ExitReturn || kind == native.ExitStop) {
		c.B.Exit(native.ExitDeploy, native.SpaceHeap, native.Operand{}, native.Operand{})
		return
	}
	if kind == native.ExitStop {
		c.B.Exit(native.ExitStop, native.SpaceHeap, native.Operand{}, native.Operand{})
		return
	}
	c.touch(off, n)
	c.B.Exit(kind, native.SpaceHeap, c.heapPtr(off), n)
}
