package lower

import (
	"github.com/holiman/uint256"

	"zkvmc/internal/native"
)

var binaryOps = map[string]native.Op{
	"add":  native.OpAdd,
	"sub":  native.OpSub,
	"mul":  native.OpMul,
	"div":  native.OpUDiv,
	"sdiv": native.OpSDiv,
	"mod":  native.OpURem,
	"smod": native.OpSRem,
	"and":  native.OpAnd,
	"or":   native.OpOr,
	"xor":  native.OpXor,
	"exp":  native.OpExp,
}

var compareOps = map[string]native.Op{
	"lt":  native.OpULt,
	"gt":  native.OpUGt,
	"slt": native.OpSLt,
	"sgt": native.OpSGt,
	"eq":  native.OpEq,
}

// arith lowers the pure EVM word operations. Arguments are in EVM order:
// args[0] is the top of the stack. The native ops wrap modulo 2^256 and
// divide by zero to zero, as the EVM does.
func (c *Context) arith(name string, args []native.Operand) (native.Operand, bool) {
	b := c.B
	if op, ok := binaryOps[name]; ok {
		return b.Bin(op, args[0], args[1]), true
	}
	if op, ok := compareOps[name]; ok {
		return b.ZExt(b.Cmp(op, args[0], args[1])), true
	}
	switch name {
	case "iszero":
		return b.ZExt(b.IsZero(args[0])), true
	case "not":
		return b.Not(args[0]), true
	case "addmod":
		return b.Tri(native.OpAddMod, args[0], args[1], args[2]), true
	case "mulmod":
		return b.Tri(native.OpMulMod, args[0], args[1], args[2]), true
	case "shl":
		return c.shift(native.OpShl, args[0], args[1]), true
	case "shr":
		return c.shift(native.OpLShr, args[0], args[1]), true
	case "sar":
		return c.shift(native.OpAShr, args[0], args[1]), true
	case "byte":
		return c.byteOf(args[0], args[1]), true
	case "signextend":
		return c.signExtend(args[0], args[1]), true
	}
	return native.Operand{}, false
}

// shift implements EVM shifts (shift amount first). Native shifts take the
// amount modulo 256, so amounts of 256 and above are selected away.
func (c *Context) shift(op native.Op, amount, value native.Operand) native.Operand {
	b := c.B
	if amount.IsConst() {
		if amount.Const.LtUint64(256) {
			return b.Bin(op, value, amount)
		}
		if op == native.OpAShr {
			return b.Bin(native.OpAShr, value, native.U64(255))
		}
		return native.U64(0)
	}
	inRange := b.Cmp(native.OpULt, amount, native.U64(256))
	shifted := b.Bin(op, value, amount)
	overflow := native.U64(0)
	if op == native.OpAShr {
		overflow = b.Bin(native.OpAShr, value, native.U64(255))
	}
	return b.Select(inRange, shifted, overflow)
}

// byteOf returns byte i of x counting from the most significant end.
func (c *Context) byteOf(i, x native.Operand) native.Operand {
	b := c.B
	if i.IsConst() {
		if !i.Const.LtUint64(32) {
			return native.U64(0)
		}
		sh := (31 - i.Const.Uint64()) * 8
		return b.Bin(native.OpAnd, b.Bin(native.OpLShr, x, native.U64(sh)), native.U64(0xff))
	}
	sh := b.Bin(native.OpMul, b.Bin(native.OpSub, native.U64(31), i), native.U64(8))
	v := b.Bin(native.OpAnd, b.Bin(native.OpLShr, x, sh), native.U64(0xff))
	return b.Select(b.Cmp(native.OpULt, i, native.U64(32)), v, native.U64(0))
}

// signExtend extends the sign bit of byte k (from the least significant
// end) of x; k >= 31 leaves x unchanged.
func (c *Context) signExtend(k, x native.Operand) native.Operand {
	b := c.B
	if k.IsConst() {
		if !k.Const.LtUint64(31) {
			return x
		}
		sh := native.U64(248 - 8*k.Const.Uint64())
		return b.Bin(native.OpAShr, b.Bin(native.OpShl, x, sh), sh)
	}
	sh := b.Bin(native.OpSub, native.U64(248), b.Bin(native.OpMul, k, native.U64(8)))
	ext := b.Bin(native.OpAShr, b.Bin(native.OpShl, x, sh), sh)
	return b.Select(b.Cmp(native.OpULt, k, native.U64(31)), ext, x)
}

// minU returns min(x, y) unsigned.
func (c *Context) minU(x, y native.Operand) native.Operand {
	if x.IsConst() && y.IsConst() {
		if x.Const.Lt(y.Const) {
			return x
		}
		return y
	}
	return c.B.Select(c.B.Cmp(native.OpULt, x, y), x, y)
}

// ergs truncates forwarded gas to the VM's 32-bit ergs register.
func (c *Context) ergs(gas native.Operand) native.Operand {
	return c.minU(gas, native.Const(uint256.NewInt(ErgsCap)))
}
