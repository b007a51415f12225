package evmla

import (
	"fmt"
	"sort"
	"strings"

	"zkvmc/internal/diag"
	"zkvmc/internal/source"
)

// TermKind describes how a block transfers control.
type TermKind uint8

const (
	TermFall        TermKind = iota // falls into Next
	TermJump                        // JUMP to Next
	TermCondJump                    // JUMPI to Taken, else Next
	TermDynamic                     // JUMP through Dispatch
	TermDynamicCond                 // JUMPI through Dispatch, else Next
	TermExit                        // STOP, RETURN, REVERT, INVALID, SELFDESTRUCT or end of code
)

// DispatchTarget is one candidate of a dynamic jump.
type DispatchTarget struct {
	Tag   uint64
	Block int
}

// Block is one clone of a basic block for a given entry stack.
type Block struct {
	ID       int
	Tag      uint64
	HasTag   bool
	Start    int // index of the first instruction in the segment
	Code     []Instruction
	Entry    Stack
	Term     TermKind
	Next     int // negative after a trailing JUMPI: falls off the end of code
	Taken    int
	Dispatch []DispatchTarget
}

// CFG is the control-flow graph of one code segment. Blocks are in DFS
// pre-order from the entry; Blocks[0] is the entry.
type CFG struct {
	Blocks   []*Block
	MaxStack int
}

// Options bounds the construction.
type Options struct {
	File      source.FileID
	Unit      string
	Segment   string // "deploy" or "runtime"
	Base      int    // instruction index of code[0] in the unit listing
	MaxBlocks int
	MaxStack  int
}

const (
	DefaultMaxBlocks = 1 << 14
	DefaultMaxStack  = 1024
)

type segment struct {
	start, end int
	tag        uint64
	hasTag     bool
}

type cfgBuilder struct {
	code     []Instruction
	opts     Options
	rep      diag.Reporter
	segments map[int]*segment
	tagStart map[uint64]int
	pushed   []uint64
	memo     map[string]int
	cfg      *CFG
	failed   bool
	budget   bool
}

// BuildCFG splits code into basic blocks and clones each block per distinct
// entry-stack signature so that every JUMP with a statically known target
// becomes a direct edge. Jumps through unknown values fall back to a
// dispatch over every tag the code ever pushes.
func BuildCFG(code []Instruction, opts Options, rep diag.Reporter) (*CFG, bool) {
	if opts.MaxBlocks <= 0 {
		opts.MaxBlocks = DefaultMaxBlocks
	}
	if opts.MaxStack <= 0 {
		opts.MaxStack = DefaultMaxStack
	}
	b := &cfgBuilder{
		code:     code,
		opts:     opts,
		rep:      rep,
		segments: make(map[int]*segment),
		tagStart: make(map[uint64]int),
		memo:     make(map[string]int),
		cfg:      &CFG{},
	}
	if !b.split() {
		return nil, false
	}
	if len(code) == 0 {
		b.cfg.Blocks = append(b.cfg.Blocks, &Block{Term: TermExit, Next: -1, Taken: -1})
		return b.cfg, true
	}
	b.visit(0, nil)
	if b.failed {
		return nil, false
	}
	return b.cfg, true
}

func (b *cfgBuilder) span(idx int) source.Span {
	return source.AtIndex(b.opts.File, b.opts.Base+idx)
}

func (b *cfgBuilder) errorf(code diag.Code, idx int, format string, args ...any) {
	b.failed = true
	if b.rep == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if b.opts.Segment != "" {
		msg = b.opts.Segment + ": " + msg
	}
	if rb := diag.ReportError(b.rep, code, b.span(idx), msg); rb != nil {
		rb.Emit()
	}
}

// split finds segment boundaries and validates tags.
func (b *cfgBuilder) split() bool {
	ok := true
	seenPush := make(map[uint64]int)
	for i, in := range b.code {
		switch in.Name {
		case NameTag:
			t, err := in.TagValue()
			if err != nil {
				b.errorf(diag.IRVMalformedInput, i, "%v", err)
				ok = false
				continue
			}
			if prev, dup := b.tagStart[t]; dup {
				b.errorf(diag.IRVDuplicateTag, i, "tag %d already defined at instruction %d", t, prev)
				ok = false
				continue
			}
			b.tagStart[t] = i
		case NamePushTag:
			t, err := in.TagValue()
			if err != nil {
				b.errorf(diag.IRVMalformedInput, i, "%v", err)
				ok = false
				continue
			}
			if _, seen := seenPush[t]; !seen {
				seenPush[t] = i
				b.pushed = append(b.pushed, t)
			}
		}
	}
	for _, t := range b.pushed {
		if _, defined := b.tagStart[t]; !defined {
			b.errorf(diag.IRVUndefinedTag, seenPush[t], "tag %d is pushed but never defined", t)
			ok = false
		}
	}
	sort.Slice(b.pushed, func(i, j int) bool { return b.pushed[i] < b.pushed[j] })
	if !ok {
		return false
	}

	start := 0
	open := true
	var cur *segment
	for i := 0; i <= len(b.code); i++ {
		if i == len(b.code) {
			if open && cur != nil {
				cur.end = i
			}
			break
		}
		in := b.code[i]
		if in.Name == NameTag {
			if open && cur != nil {
				cur.end = i
			}
			t, _ := in.TagValue()
			cur = &segment{start: i, tag: t, hasTag: true}
			b.segments[i] = cur
			open = true
			continue
		}
		if !open {
			continue // dead code after an unconditional transfer
		}
		if cur == nil {
			cur = &segment{start: start}
			b.segments[start] = cur
		}
		info, known := Lookup(in.Name)
		switch {
		case in.Name == NameJump || (known && info.Terminates):
			cur.end = i + 1
			open = false
		case in.Name == NameJumpI:
			cur.end = i + 1
			if i+1 < len(b.code) && b.code[i+1].Name != NameTag {
				cur = &segment{start: i + 1}
				b.segments[i+1] = cur
			} else {
				open = false
			}
		}
	}
	return true
}

// visit returns the block for segment start entered with stack entry,
// creating and exploring it on first use.
func (b *cfgBuilder) visit(start int, entry Stack) int {
	key := fmt.Sprintf("%d/%s", start, entry.Signature())
	if id, ok := b.memo[key]; ok {
		return id
	}
	if b.failed {
		return -1
	}
	if len(b.cfg.Blocks) >= b.opts.MaxBlocks {
		if !b.budget {
			b.budget = true
			b.errorf(diag.RESCloneBudget, start, "block cloning exceeds budget of %d blocks", b.opts.MaxBlocks)
		}
		return -1
	}
	seg := b.segments[start]
	blk := &Block{
		ID:     len(b.cfg.Blocks),
		Tag:    seg.tag,
		HasTag: seg.hasTag,
		Start:  seg.start,
		Code:   b.code[seg.start:seg.end],
		Entry:  entry.Clone(),
		Next:   -1,
		Taken:  -1,
	}
	b.cfg.Blocks = append(b.cfg.Blocks, blk)
	b.memo[key] = blk.ID

	st := entry.Clone()
	for i := seg.start; i < seg.end; i++ {
		in := b.code[i]
		if !b.step(&st, in, i) {
			return blk.ID
		}
		if len(st) > b.cfg.MaxStack {
			b.cfg.MaxStack = len(st)
		}
		if len(st) > b.opts.MaxStack {
			b.errorf(diag.RESStackTooDeep, i, "stack depth %d exceeds limit %d", len(st), b.opts.MaxStack)
			return blk.ID
		}
		switch in.Name {
		case NameJump:
			target, ok := st.pop()
			if !ok {
				b.errorf(diag.IRVStackUnderflow, i, "JUMP on empty stack")
				return blk.ID
			}
			b.jump(blk, target, st, i, false)
			return blk.ID
		case NameJumpI:
			target, ok1 := st.pop()
			_, ok2 := st.pop()
			if !ok1 || !ok2 {
				b.errorf(diag.IRVStackUnderflow, i, "JUMPI needs 2 stack items")
				return blk.ID
			}
			b.jump(blk, target, st, i, true)
			if i+1 < len(b.code) {
				blk.Next = b.visit(i+1, st)
			}
			return blk.ID
		}
		if info, ok := Lookup(in.Name); ok && info.Terminates {
			blk.Term = TermExit
			return blk.ID
		}
	}
	if seg.end >= len(b.code) {
		blk.Term = TermExit
		return blk.ID
	}
	blk.Term = TermFall
	blk.Next = b.visit(seg.end, st)
	return blk.ID
}

func (b *cfgBuilder) jump(blk *Block, target Element, st Stack, idx int, cond bool) {
	switch target.Kind {
	case ElemTag:
		dest := b.tagStart[target.Tag]
		if cond {
			blk.Term = TermCondJump
			blk.Taken = b.visit(dest, st)
		} else {
			blk.Term = TermJump
			blk.Next = b.visit(dest, st)
		}
	case ElemUnknown:
		if len(b.pushed) == 0 {
			b.errorf(diag.IRVInvalidJump, idx, "dynamic jump with no pushed tags to dispatch to")
			return
		}
		if cond {
			blk.Term = TermDynamicCond
		} else {
			blk.Term = TermDynamic
		}
		blk.Dispatch = make([]DispatchTarget, 0, len(b.pushed))
		for _, t := range b.pushed {
			id := b.visit(b.tagStart[t], st)
			if b.failed {
				return
			}
			blk.Dispatch = append(blk.Dispatch, DispatchTarget{Tag: t, Block: id})
		}
	default:
		b.errorf(diag.IRVInvalidJump, idx, "jump target is a data reference (%s)", target)
	}
}

// step simulates in on st; it returns false after reporting an error.
// JUMP and JUMPI are left to the caller.
func (b *cfgBuilder) step(st *Stack, in Instruction, idx int) bool {
	switch in.Name {
	case NameTag, NameJumpDest, NameJump, NameJumpI:
		return true
	case NamePushTag:
		t, _ := in.TagValue()
		st.push(Element{Kind: ElemTag, Tag: t})
		return true
	case NamePushData:
		st.push(Element{Kind: ElemData, Data: in.DataKey()})
		return true
	case NamePushDataSize:
		st.push(Element{Kind: ElemDataSize, Data: in.DataKey()})
		return true
	}
	if n, ok := DupDepth(in.Name); ok {
		if len(*st) < n {
			b.errorf(diag.IRVStackUnderflow, idx, "%s needs %d stack items, have %d", in.Name, n, len(*st))
			return false
		}
		st.push((*st)[len(*st)-n])
		return true
	}
	if n, ok := SwapDepth(in.Name); ok {
		if len(*st) < n+1 {
			b.errorf(diag.IRVStackUnderflow, idx, "%s needs %d stack items, have %d", in.Name, n+1, len(*st))
			return false
		}
		s := *st
		top := len(s) - 1
		s[top], s[top-n] = s[top-n], s[top]
		return true
	}
	info, ok := Lookup(in.Name)
	if !ok {
		b.errorf(diag.IRVUnknownInstruction, idx, "unknown instruction %q", in.Name)
		return false
	}
	if len(*st) < info.In {
		b.errorf(diag.IRVStackUnderflow, idx, "%s needs %d stack items, have %d", in.Name, info.In, len(*st))
		return false
	}
	*st = (*st)[:len(*st)-info.In]
	for k := 0; k < info.Out; k++ {
		st.push(Element{})
	}
	return true
}

// Dump renders the graph for debugging and golden tests.
func (c *CFG) Dump() string {
	var sb strings.Builder
	for _, blk := range c.Blocks {
		label := "entry"
		if blk.HasTag {
			label = fmt.Sprintf("tag_%d", blk.Tag)
		} else if blk.Start != 0 {
			label = fmt.Sprintf("@%d", blk.Start)
		}
		fmt.Fprintf(&sb, "b%d %s [%s]", blk.ID, label, blk.Entry.Signature())
		switch blk.Term {
		case TermFall:
			fmt.Fprintf(&sb, " fall b%d", blk.Next)
		case TermJump:
			fmt.Fprintf(&sb, " jump b%d", blk.Next)
		case TermCondJump:
			fmt.Fprintf(&sb, " jumpi b%d else b%d", blk.Taken, blk.Next)
		case TermDynamic, TermDynamicCond:
			sb.WriteString(" dispatch")
			for _, d := range blk.Dispatch {
				fmt.Fprintf(&sb, " %d:b%d", d.Tag, d.Block)
			}
			if blk.Term == TermDynamicCond {
				fmt.Fprintf(&sb, " else b%d", blk.Next)
			}
		case TermExit:
			sb.WriteString(" exit")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
