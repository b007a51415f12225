package native

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a human-readable representation of the module.
func Dump(w io.Writer, m *Module) error {
	if w == nil || m == nil {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %q\n", m.Unit)
	for i, g := range m.Globals {
		fmt.Fprintf(&sb, "global @%s  ; G%d\n", g.Name, i)
	}
	for _, f := range m.Funcs {
		sb.WriteByte('\n')
		printFunc(&sb, m, f)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// String renders the module with Dump.
func String(m *Module) string {
	var sb strings.Builder
	_ = Dump(&sb, m)
	return sb.String()
}

func printFunc(sb *strings.Builder, m *Module, f *Func) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%%%d", p)
	}
	entry := ""
	if f.ID == m.Entry {
		entry = " entry"
	}
	fmt.Fprintf(sb, "func @%s(%s) -> %d%s {\n", f.Name, strings.Join(params, ", "), f.Results, entry)
	for i := range f.Blocks {
		blk := &f.Blocks[i]
		fmt.Fprintf(sb, "bb%d:", blk.ID)
		if blk.Name != "" {
			fmt.Fprintf(sb, "  ; %s", blk.Name)
		}
		sb.WriteByte('\n')
		for j := range blk.Instrs {
			sb.WriteString("  ")
			printInstr(sb, m, &blk.Instrs[j])
			sb.WriteByte('\n')
		}
		sb.WriteString("  ")
		printTerm(sb, &blk.Term)
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n")
}

func joinOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.String()
	}
	return strings.Join(parts, ", ")
}

func printInstr(sb *strings.Builder, m *Module, in *Instr) {
	switch in.Op {
	case OpCall:
		if len(in.Dsts) > 0 {
			dsts := make([]string, len(in.Dsts))
			for i, d := range in.Dsts {
				dsts[i] = fmt.Sprintf("%%%d", d)
			}
			fmt.Fprintf(sb, "%s = ", strings.Join(dsts, ", "))
		}
		name := "?"
		if callee := m.Func(in.Callee); callee != nil {
			name = callee.Name
		}
		fmt.Fprintf(sb, "call @%s(%s)", name, joinOperands(in.Args))
		return
	}
	if in.Dst != NoValueID {
		fmt.Fprintf(sb, "%%%d = ", in.Dst)
	}
	sb.WriteString(in.Op.String())
	switch in.Op {
	case OpLoad, OpStore, OpStore8, OpKeccak, OpPtr, OpPtrAdd, OpSize, OpLog, OpAlloca:
		sb.WriteString("." + in.Space.String())
	case OpCopy:
		fmt.Fprintf(sb, ".%s.%s", in.Space, in.Src)
	case OpContext:
		sb.WriteString("." + in.Ctx.String())
	case OpGlobalGet, OpGlobalSet:
		name := "?"
		if in.Glob >= 0 && int(in.Glob) < len(m.Globals) {
			name = m.Globals[in.Glob].Name
		}
		fmt.Fprintf(sb, " @%s", name)
	case OpFarCall:
		sb.WriteString("." + in.Far.String())
	case OpLinkSym:
		fmt.Fprintf(sb, " %q", in.Sym.String())
	}
	if len(in.Args) > 0 {
		sb.WriteString(" " + joinOperands(in.Args))
	}
}

func printTerm(sb *strings.Builder, t *Terminator) {
	switch t.Kind {
	case TermGoto:
		fmt.Fprintf(sb, "goto bb%d", t.Goto.Target)
	case TermIf:
		fmt.Fprintf(sb, "if %s, bb%d, bb%d", t.If.Cond, t.If.Then, t.If.Else)
	case TermSwitch:
		fmt.Fprintf(sb, "switch %s [", t.Switch.Value)
		for i, c := range t.Switch.Cases {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "%s: bb%d", c.Value.Hex(), c.Target)
		}
		fmt.Fprintf(sb, "] default bb%d", t.Switch.Default)
	case TermReturn:
		sb.WriteString("ret")
		if len(t.Return.Values) > 0 {
			sb.WriteString(" " + joinOperands(t.Return.Values))
		}
	case TermExit:
		fmt.Fprintf(sb, "exit.%s", t.Exit.Kind)
		if t.Exit.Kind == ExitReturn || t.Exit.Kind == ExitRevert {
			fmt.Fprintf(sb, ".%s %s, %s", t.Exit.Space, t.Exit.Ptr, t.Exit.Len)
		}
	case TermTrap:
		sb.WriteString("trap")
		if t.Trap.Reason != "" {
			fmt.Fprintf(sb, " %q", t.Trap.Reason)
		}
	case TermUnreachable:
		sb.WriteString("unreachable")
	default:
		sb.WriteString("<unterminated>")
	}
}
