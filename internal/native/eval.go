package native

import "github.com/holiman/uint256"

// Eval computes a pure op over constant operands. Comparisons yield 0 or 1.
// Shift amounts are taken mod 256; the lowering handles larger amounts.
func Eval(op Op, args []*uint256.Int) (*uint256.Int, bool) {
	if !op.IsPure() || (op.Arity() >= 0 && len(args) != op.Arity()) {
		return nil, false
	}
	z := new(uint256.Int)
	boolean := func(b bool) *uint256.Int {
		if b {
			return z.SetOne()
		}
		return z.Clear()
	}
	switch op {
	case OpAdd, OpPtrAdd:
		z.Add(args[0], args[1])
	case OpSub:
		z.Sub(args[0], args[1])
	case OpMul:
		z.Mul(args[0], args[1])
	case OpUDiv:
		z.Div(args[0], args[1])
	case OpSDiv:
		z.SDiv(args[0], args[1])
	case OpURem:
		z.Mod(args[0], args[1])
	case OpSRem:
		z.SMod(args[0], args[1])
	case OpAnd:
		z.And(args[0], args[1])
	case OpOr:
		z.Or(args[0], args[1])
	case OpXor:
		z.Xor(args[0], args[1])
	case OpNot:
		z.Not(args[0])
	case OpShl:
		z.Lsh(args[0], uint(args[1].Uint64()&255))
	case OpLShr:
		z.Rsh(args[0], uint(args[1].Uint64()&255))
	case OpAShr:
		z.SRsh(args[0], uint(args[1].Uint64()&255))
	case OpEq:
		return boolean(args[0].Eq(args[1])), true
	case OpULt:
		return boolean(args[0].Lt(args[1])), true
	case OpUGt:
		return boolean(args[0].Gt(args[1])), true
	case OpSLt:
		return boolean(args[0].Slt(args[1])), true
	case OpSGt:
		return boolean(args[0].Sgt(args[1])), true
	case OpIsZero:
		return boolean(args[0].IsZero()), true
	case OpZExt, OpPtr:
		z.Set(args[0])
	case OpSelect:
		if !args[0].IsZero() {
			z.Set(args[1])
		} else {
			z.Set(args[2])
		}
	case OpAddMod:
		z.AddMod(args[0], args[1], args[2])
	case OpMulMod:
		z.MulMod(args[0], args[1], args[2])
	case OpExp:
		z.Exp(args[0], args[1])
	default:
		return nil, false
	}
	return z, true
}
