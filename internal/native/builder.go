package native

import (
	"fmt"

	"fortio.org/safecast"
)

// FuncBuilder appends instructions to the current block of a function.
// Emitting into a terminated block opens a fresh unreachable block, so
// callers can lower statements after return/revert without bookkeeping.
type FuncBuilder struct {
	F   *Func
	cur BlockID
}

// NewFuncBuilder creates the entry block of f and positions at it.
func NewFuncBuilder(f *Func) *FuncBuilder {
	b := &FuncBuilder{F: f, cur: NoBlockID}
	if len(f.Blocks) == 0 {
		f.Entry = b.NewBlock("entry")
	}
	b.cur = f.Entry
	return b
}

// NewBlock appends an empty block without switching to it.
func (b *FuncBuilder) NewBlock(name string) BlockID {
	n, err := safecast.Conv[int32](len(b.F.Blocks))
	if err != nil {
		panic(fmt.Errorf("block count overflow: %w", err))
	}
	id := BlockID(n)
	b.F.Blocks = append(b.F.Blocks, Block{ID: id, Name: name})
	return id
}

// SetBlock positions the builder at id.
func (b *FuncBuilder) SetBlock(id BlockID) { b.cur = id }

// Block returns the current block id.
func (b *FuncBuilder) Block() BlockID { return b.cur }

// Terminated reports whether the current block already has a terminator.
func (b *FuncBuilder) Terminated() bool { return b.F.Blocks[b.cur].Terminated() }

func (b *FuncBuilder) block() *Block {
	if b.Terminated() {
		b.cur = b.NewBlock("dead")
	}
	return &b.F.Blocks[b.cur]
}

func (b *FuncBuilder) emit(in Instr) {
	blk := b.block()
	blk.Instrs = append(blk.Instrs, in)
}

func (b *FuncBuilder) def(t Type, in Instr) Operand {
	blk := b.block()
	in.Dst = b.F.NewValue(t)
	blk.Instrs = append(blk.Instrs, in)
	return Val(in.Dst)
}

func (b *FuncBuilder) effect(in Instr) {
	in.Dst = NoValueID
	b.emit(in)
}

// Bin emits a two-operand word op.
func (b *FuncBuilder) Bin(op Op, x, y Operand) Operand {
	return b.def(Word, Instr{Op: op, Args: []Operand{x, y}})
}

// Cmp emits a comparison; the result is a bool.
func (b *FuncBuilder) Cmp(op Op, x, y Operand) Operand {
	return b.def(Bool, Instr{Op: op, Args: []Operand{x, y}})
}

func (b *FuncBuilder) Not(x Operand) Operand {
	return b.def(Word, Instr{Op: OpNot, Args: []Operand{x}})
}

func (b *FuncBuilder) IsZero(x Operand) Operand {
	return b.def(Bool, Instr{Op: OpIsZero, Args: []Operand{x}})
}

// ZExt widens a bool to a word.
func (b *FuncBuilder) ZExt(x Operand) Operand {
	return b.def(Word, Instr{Op: OpZExt, Args: []Operand{x}})
}

func (b *FuncBuilder) Select(cond, x, y Operand) Operand {
	return b.def(Word, Instr{Op: OpSelect, Args: []Operand{cond, x, y}})
}

// Tri emits addmod/mulmod.
func (b *FuncBuilder) Tri(op Op, x, y, m Operand) Operand {
	return b.def(Word, Instr{Op: op, Args: []Operand{x, y, m}})
}

func (b *FuncBuilder) Keccak(space Space, ptr, n Operand) Operand {
	return b.def(Word, Instr{Op: OpKeccak, Space: space, Args: []Operand{ptr, n}})
}

// Alloca reserves words 32-byte slots in the frame's stack space.
func (b *FuncBuilder) Alloca(words Operand) Operand {
	return b.def(Ptr(SpaceStack), Instr{Op: OpAlloca, Space: SpaceStack, Args: []Operand{words}})
}

// EntryAlloca reserves words slots at the top of the entry block, so the
// slot is allocated once per call even when requested inside a loop.
func (b *FuncBuilder) EntryAlloca(words uint64) Operand {
	id := b.F.NewValue(Ptr(SpaceStack))
	entry := &b.F.Blocks[b.F.Entry]
	in := Instr{Op: OpAlloca, Dst: id, Space: SpaceStack, Args: []Operand{U64(words)}}
	entry.Instrs = append([]Instr{in}, entry.Instrs...)
	return Val(id)
}

// Ptr tags a byte offset with space.
func (b *FuncBuilder) Ptr(space Space, off Operand) Operand {
	return b.def(Ptr(space), Instr{Op: OpPtr, Space: space, Args: []Operand{off}})
}

func (b *FuncBuilder) PtrAdd(space Space, p, delta Operand) Operand {
	return b.def(Ptr(space), Instr{Op: OpPtrAdd, Space: space, Args: []Operand{p, delta}})
}

// Load reads 32 bytes at p (big endian, unaligned allowed).
func (b *FuncBuilder) Load(space Space, p Operand) Operand {
	return b.def(Word, Instr{Op: OpLoad, Space: space, Args: []Operand{p}})
}

func (b *FuncBuilder) Store(space Space, p, v Operand) {
	b.effect(Instr{Op: OpStore, Space: space, Args: []Operand{p, v}})
}

func (b *FuncBuilder) Store8(space Space, p, v Operand) {
	b.effect(Instr{Op: OpStore8, Space: space, Args: []Operand{p, v}})
}

// Copy moves n bytes; source bytes past the end of a read-only space read
// as zero.
func (b *FuncBuilder) Copy(dst, src Space, dp, sp, n Operand) {
	b.effect(Instr{Op: OpCopy, Space: dst, Src: src, Args: []Operand{dp, sp, n}})
}

// Size returns the byte length of calldata or return data.
func (b *FuncBuilder) Size(space Space) Operand {
	return b.def(Word, Instr{Op: OpSize, Space: space})
}

func (b *FuncBuilder) SLoad(key Operand) Operand {
	return b.def(Word, Instr{Op: OpSLoad, Args: []Operand{key}})
}

func (b *FuncBuilder) SStore(key, v Operand) {
	b.effect(Instr{Op: OpSStore, Args: []Operand{key, v}})
}

func (b *FuncBuilder) TLoad(key Operand) Operand {
	return b.def(Word, Instr{Op: OpTLoad, Args: []Operand{key}})
}

func (b *FuncBuilder) TStore(key, v Operand) {
	b.effect(Instr{Op: OpTStore, Args: []Operand{key, v}})
}

func (b *FuncBuilder) Context(kind ContextKind) Operand {
	return b.def(Word, Instr{Op: OpContext, Ctx: kind})
}

func (b *FuncBuilder) GlobalGet(g GlobalID) Operand {
	return b.def(Word, Instr{Op: OpGlobalGet, Glob: g})
}

func (b *FuncBuilder) GlobalSet(g GlobalID, v Operand) {
	b.effect(Instr{Op: OpGlobalSet, Glob: g, Args: []Operand{v}})
}

// Call emits a near call and returns one operand per callee result.
func (b *FuncBuilder) Call(callee *Func, args ...Operand) []Operand {
	in := Instr{Op: OpCall, Dst: NoValueID, Callee: callee.ID, Args: args}
	out := make([]Operand, callee.Results)
	blk := b.block()
	for i := range out {
		id := b.F.NewValue(Word)
		in.Dsts = append(in.Dsts, id)
		out[i] = Val(id)
	}
	blk.Instrs = append(blk.Instrs, in)
	return out
}

// FarCall emits a far call; the result is the success flag as a word.
func (b *FuncBuilder) FarCall(desc FarCall, addr, gas, inPtr, inLen Operand, extra ...Operand) Operand {
	args := append([]Operand{addr, gas, inPtr, inLen}, extra...)
	return b.def(Word, Instr{Op: OpFarCall, Far: desc, Args: args, Space: b.F.OperandType(inPtr).Space})
}

func (b *FuncBuilder) LinkSym(sym LinkSymbol) Operand {
	return b.def(Word, Instr{Op: OpLinkSym, Sym: sym})
}

func (b *FuncBuilder) Log(space Space, p, n Operand, topics ...Operand) {
	b.effect(Instr{Op: OpLog, Space: space, Args: append([]Operand{p, n}, topics...)})
}

func (b *FuncBuilder) terminate(t Terminator) {
	blk := b.block()
	blk.Term = t
}

func (b *FuncBuilder) Goto(target BlockID) {
	b.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: target}})
}

func (b *FuncBuilder) If(cond Operand, then, els BlockID) {
	b.terminate(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: then, Else: els}})
}

func (b *FuncBuilder) Switch(v Operand, cases []SwitchCase, def BlockID) {
	b.terminate(Terminator{Kind: TermSwitch, Switch: SwitchTerm{Value: v, Cases: cases, Default: def}})
}

func (b *FuncBuilder) Return(values ...Operand) {
	b.terminate(Terminator{Kind: TermReturn, Return: ReturnTerm{Values: values}})
}

// Exit ends the contract frame. Ptr and Len are ignored for stop and deploy.
func (b *FuncBuilder) Exit(kind ExitKind, space Space, p, n Operand) {
	b.terminate(Terminator{Kind: TermExit, Exit: ExitTerm{Kind: kind, Space: space, Ptr: p, Len: n}})
}

func (b *FuncBuilder) Trap(reason string) {
	b.terminate(Terminator{Kind: TermTrap, Trap: TrapTerm{Reason: reason}})
}

func (b *FuncBuilder) Unreachable() {
	b.terminate(Terminator{Kind: TermUnreachable})
}
