package lower

import (
	"github.com/holiman/uint256"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir/evmla"
	"zkvmc/internal/native"
	"zkvmc/internal/source"
)

type refKind uint8

const (
	refUnknown refKind = iota
	refSelf
	refDep
)

// dataRef is what a data offset statically refers to.
type dataRef struct {
	kind refKind
	path string
}

var addressMask = func() *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), 160)
	return m.SubUint64(m, 1)
}()

// resolveData maps an object name (Yul) or data key (legacy assembly) to
// the unit itself or to a factory dependency.
func (c *Context) resolveData(name string, sp source.Span) dataRef {
	if _, ok := c.selfNames[name]; ok || name == evmla.RuntimeKey || name == c.Unit.Name {
		return dataRef{kind: refSelf}
	}
	full, ok := c.Info.ResolveDependency(name)
	if !ok {
		c.errorf(diag.LNKMissingDependency, sp, "factory dependency %q is not part of the project", name)
		return dataRef{}
	}
	return dataRef{kind: refDep, path: full}
}

// dataOffset is 0 for the unit's own code and the code hash symbol of a
// dependency.
func (c *Context) dataOffset(ref dataRef) native.Operand {
	if ref.kind != refDep {
		return native.U64(0)
	}
	return c.B.LinkSym(native.LinkSymbol{Kind: native.SymFactory, Path: ref.path})
}

func (c *Context) dataSize(ref dataRef) native.Operand {
	if ref.kind != refDep {
		return native.U64(0)
	}
	return native.U64(DependencyDataSize)
}

// codeCopy lowers CODECOPY / datacopy. Copying a dependency stores its code
// hash; copying the unit's own code is a no-op. Any other offset reads the
// constructor arguments in deploy code and is rejected in runtime code.
func (c *Context) codeCopy(dst, off, n native.Operand, ref dataRef, sp source.Span) {
	switch ref.kind {
	case refSelf:
		return
	case refDep:
		c.mstore(dst, off)
		return
	}
	if c.Segment == SegRuntime {
		c.reject("runtime codecopy", sp)
		return
	}
	c.copyIn(native.SpaceCalldata, dst, off, n)
}

func (c *Context) codeSize(sp source.Span) native.Operand {
	if c.Segment == SegRuntime {
		c.reject("runtime codesize", sp)
		return zero()
	}
	return c.B.Size(native.SpaceCalldata)
}

// create lowers CREATE (salt == nil) and CREATE2. Memory [off, off+size)
// holds the child's code hash, as written by codecopy of its data offset,
// followed by the constructor arguments. The deployer receives
// [selector, salt, hash] in registers and the arguments as input.
func (c *Context) create(value, off, size native.Operand, salt *native.Operand) native.Operand {
	b := c.B
	c.touch(off, size)
	hash := b.Load(native.SpaceHeap, c.heapPtr(off))
	argsOff := b.Bin(native.OpAdd, off, native.U64(32))
	var argsLen native.Operand
	if size.IsConst() {
		if size.Const.LtUint64(32) {
			argsLen = native.U64(0)
		} else {
			argsLen = native.Const(new(uint256.Int).SubUint64(size.Const, 32))
		}
	} else {
		argsLen = b.Select(b.Cmp(native.OpULt, size, native.U64(32)), native.U64(0), b.Bin(native.OpSub, size, native.U64(32)))
	}
	sig, s := sigCreate, native.U64(0)
	if salt != nil {
		sig, s = sigCreate2, *salt
	}
	gas := c.ergs(b.Context(native.CtxGasLeft))
	ok := c.farCall(native.FarCall{Mode: native.FarNormal, System: true}, addr(AddrDeployer), gas,
		c.heapPtr(argsOff), argsLen, value, native.Const(Selector(sig)), s, hash)

	slot := b.EntryAlloca(1)
	b.Store(native.SpaceStack, slot, native.U64(0))
	success, join := b.NewBlock("create.ok"), b.NewBlock("create.join")
	b.If(ok, success, join)
	b.SetBlock(success)
	var deployed native.Operand
	if salt != nil {
		deployed = c.create2Address(b.Context(native.CtxAddress), s, hash)
	} else {
		word := b.Load(native.SpaceReturnData, b.Ptr(native.SpaceReturnData, native.U64(0)))
		deployed = b.Bin(native.OpAnd, word, native.Const(addressMask))
	}
	b.Store(native.SpaceStack, slot, deployed)
	b.Goto(join)
	b.SetBlock(join)
	return b.Load(native.SpaceStack, slot)
}

// create2Address emits keccak256(0xff ++ sender ++ salt ++ hash)[12:].
// Word 0 of the scratch is (0xff << 160) | sender, so the 85-byte preimage
// starts at byte 11.
func (c *Context) create2Address(sender, salt, hash native.Operand) native.Operand {
	b := c.B
	scratch := b.EntryAlloca(create2Scratch)
	prefix := new(uint256.Int).Lsh(uint256.NewInt(0xff), 160)
	w0 := b.Bin(native.OpOr, b.Bin(native.OpAnd, sender, native.Const(addressMask)), native.Const(prefix))
	b.Store(native.SpaceStack, scratch, w0)
	b.Store(native.SpaceStack, b.PtrAdd(native.SpaceStack, scratch, native.U64(32)), salt)
	b.Store(native.SpaceStack, b.PtrAdd(native.SpaceStack, scratch, native.U64(64)), hash)
	start := b.PtrAdd(native.SpaceStack, scratch, native.U64(create2ScratchOffset))
	h := b.Keccak(native.SpaceStack, start, native.U64(create2PreimageLen))
	return b.Bin(native.OpAnd, h, native.Const(addressMask))
}
