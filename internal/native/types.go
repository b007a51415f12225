package native

import (
	"fmt"

	"github.com/holiman/uint256"
)

type FuncID int32
type BlockID int32
type ValueID int32
type GlobalID int32

const (
	NoFuncID   FuncID   = -1
	NoBlockID  BlockID  = -1
	NoValueID  ValueID  = -1
	NoGlobalID GlobalID = -1
)

// Space is the address space a pointer refers to.
type Space uint8

const (
	SpaceHeap Space = iota
	SpaceCalldata
	SpaceReturnData
	SpaceStack
	SpaceStorage
	SpaceImmutables
)

var spaceNames = [...]string{"heap", "cd", "ret", "stack", "storage", "imm"}

func (s Space) String() string {
	if int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return fmt.Sprintf("space%d", s)
}

// Writable reports whether stores into s are allowed.
func (s Space) Writable() bool {
	return s == SpaceHeap || s == SpaceStack || s == SpaceImmutables
}

type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeWord
	TypeBool
	TypePtr
)

// Type of an SSA value. Space is meaningful only for pointers.
type Type struct {
	Kind  TypeKind
	Space Space
}

var (
	Void = Type{Kind: TypeVoid}
	Word = Type{Kind: TypeWord}
	Bool = Type{Kind: TypeBool}
)

// Ptr returns the pointer type tagged with space.
func Ptr(space Space) Type { return Type{Kind: TypePtr, Space: space} }

func (t Type) String() string {
	switch t.Kind {
	case TypeWord:
		return "word"
	case TypeBool:
		return "bool"
	case TypePtr:
		return "ptr." + t.Space.String()
	default:
		return "void"
	}
}

type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandConst
	OperandValue
)

// Operand is either a 256-bit constant or an SSA value.
type Operand struct {
	Kind  OperandKind
	Const *uint256.Int
	Value ValueID
}

// Const wraps a constant; the operand owns a copy.
func Const(v *uint256.Int) Operand {
	return Operand{Kind: OperandConst, Const: new(uint256.Int).Set(v), Value: NoValueID}
}

// U64 is a small constant.
func U64(v uint64) Operand {
	return Operand{Kind: OperandConst, Const: uint256.NewInt(v), Value: NoValueID}
}

// Val references an SSA value.
func Val(id ValueID) Operand { return Operand{Kind: OperandValue, Value: id} }

func (o Operand) IsConst() bool { return o.Kind == OperandConst }
func (o Operand) IsValue() bool { return o.Kind == OperandValue }

// IsConstU64 reports whether o is the constant v.
func (o Operand) IsConstU64(v uint64) bool {
	return o.Kind == OperandConst && o.Const.IsUint64() && o.Const.Uint64() == v
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandConst:
		return o.Const.Hex()
	case OperandValue:
		return fmt.Sprintf("%%%d", o.Value)
	default:
		return "_"
	}
}
