package native

import "github.com/holiman/uint256"

type TermKind uint8

const (
	TermNone TermKind = iota
	TermGoto
	TermIf
	TermSwitch
	TermReturn
	TermExit
	TermTrap
	TermUnreachable
)

// ExitKind ends the whole frame of the contract.
type ExitKind uint8

const (
	ExitReturn ExitKind = iota
	ExitRevert
	ExitStop
	ExitDeploy // constructor finished; the immutables space is committed
)

func (k ExitKind) String() string {
	switch k {
	case ExitRevert:
		return "revert"
	case ExitStop:
		return "stop"
	case ExitDeploy:
		return "deploy"
	default:
		return "return"
	}
}

type Terminator struct {
	Kind TermKind

	Goto   GotoTerm
	If     IfTerm
	Switch SwitchTerm
	Return ReturnTerm
	Exit   ExitTerm
	Trap   TrapTerm
}

type GotoTerm struct {
	Target BlockID
}

type IfTerm struct {
	Cond Operand
	Then BlockID
	Else BlockID
}

type SwitchCase struct {
	Value  *uint256.Int
	Target BlockID
}

type SwitchTerm struct {
	Value   Operand
	Cases   []SwitchCase
	Default BlockID
}

// ReturnTerm returns from a near call.
type ReturnTerm struct {
	Values []Operand
}

// ExitTerm leaves the contract; Ptr/Len address the output for return and
// revert.
type ExitTerm struct {
	Kind  ExitKind
	Space Space
	Ptr   Operand
	Len   Operand
}

type TrapTerm struct {
	Reason string
}

// Successors returns the blocks control may reach from t.
func (t *Terminator) Successors() []BlockID {
	switch t.Kind {
	case TermGoto:
		return []BlockID{t.Goto.Target}
	case TermIf:
		return []BlockID{t.If.Then, t.If.Else}
	case TermSwitch:
		out := make([]BlockID, 0, len(t.Switch.Cases)+1)
		for _, c := range t.Switch.Cases {
			out = append(out, c.Target)
		}
		return append(out, t.Switch.Default)
	}
	return nil
}

// MapTargets rewrites every successor through fn.
func (t *Terminator) MapTargets(fn func(BlockID) BlockID) {
	switch t.Kind {
	case TermGoto:
		t.Goto.Target = fn(t.Goto.Target)
	case TermIf:
		t.If.Then = fn(t.If.Then)
		t.If.Else = fn(t.If.Else)
	case TermSwitch:
		cases := make([]SwitchCase, len(t.Switch.Cases))
		copy(cases, t.Switch.Cases)
		for j := range cases {
			cases[j].Target = fn(cases[j].Target)
		}
		t.Switch.Cases = cases
		t.Switch.Default = fn(t.Switch.Default)
	}
}

// Operands returns the operands read by the terminator.
func (t *Terminator) Operands() []Operand {
	switch t.Kind {
	case TermIf:
		return []Operand{t.If.Cond}
	case TermSwitch:
		return []Operand{t.Switch.Value}
	case TermReturn:
		return t.Return.Values
	case TermExit:
		if t.Exit.Kind == ExitReturn || t.Exit.Kind == ExitRevert {
			return []Operand{t.Exit.Ptr, t.Exit.Len}
		}
	}
	return nil
}

// MapOperands rewrites operands read by the terminator.
func (t *Terminator) MapOperands(fn func(Operand) Operand) {
	switch t.Kind {
	case TermIf:
		t.If.Cond = fn(t.If.Cond)
	case TermSwitch:
		t.Switch.Value = fn(t.Switch.Value)
	case TermReturn:
		for i := range t.Return.Values {
			t.Return.Values[i] = fn(t.Return.Values[i])
		}
	case TermExit:
		if t.Exit.Kind == ExitReturn || t.Exit.Kind == ExitRevert {
			t.Exit.Ptr = fn(t.Exit.Ptr)
			t.Exit.Len = fn(t.Exit.Len)
		}
	}
}
