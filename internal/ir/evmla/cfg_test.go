package evmla

import (
	"strings"
	"testing"

	"zkvmc/internal/diag"
)

func ins(name string, value ...string) Instruction {
	in := Instruction{Name: name}
	if len(value) > 0 {
		in.Value = value[0]
	}
	return in
}

func build(t *testing.T, code []Instruction, opts Options) (*CFG, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(0)
	cfg, _ := BuildCFG(code, opts, diag.BagReporter{Bag: bag})
	return cfg, bag
}

func TestBuildCFGStraightLine(t *testing.T) {
	cfg, bag := build(t, []Instruction{
		ins("PUSH", "1"), ins("PUSH", "2"), ins("ADD"), ins("POP"), ins("STOP"),
	}, Options{})
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
	if len(cfg.Blocks) != 1 || cfg.Blocks[0].Term != TermExit {
		t.Fatalf("got:\n%s", cfg.Dump())
	}
	if cfg.MaxStack != 2 {
		t.Fatalf("max stack = %d, want 2", cfg.MaxStack)
	}
}

// Two call sites of one internal function with different return tags must
// produce two clones of the function body.
func TestBuildCFGClonesPerReturnAddress(t *testing.T) {
	code := []Instruction{
		ins(NamePushTag, "1"), ins(NamePushTag, "10"), ins(NameJump),
		ins(NameTag, "1"), ins(NameJumpDest),
		ins(NamePushTag, "2"), ins(NamePushTag, "10"), ins(NameJump),
		ins(NameTag, "2"), ins(NameJumpDest), ins("STOP"),
		ins(NameTag, "10"), ins(NameJumpDest), ins(NameJump),
	}
	cfg, bag := build(t, code, Options{})
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
	clones := 0
	for _, blk := range cfg.Blocks {
		if blk.HasTag && blk.Tag == 10 {
			clones++
			if blk.Term != TermJump {
				t.Fatalf("function clone should jump statically:\n%s", cfg.Dump())
			}
		}
		if blk.Term == TermDynamic {
			t.Fatalf("no dynamic jumps expected:\n%s", cfg.Dump())
		}
	}
	if clones != 2 {
		t.Fatalf("tag 10 clones = %d, want 2:\n%s", clones, cfg.Dump())
	}
	if cfg.Blocks[0].Start != 0 {
		t.Fatalf("entry block must come first")
	}
}

func TestBuildCFGConditionalAndLoop(t *testing.T) {
	code := []Instruction{
		ins(NameTag, "1"), ins(NameJumpDest),
		ins("PUSH", "0"), ins("CALLDATALOAD"), ins(NamePushTag, "1"), ins(NameJumpI),
		ins("STOP"),
	}
	cfg, bag := build(t, code, Options{})
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
	if len(cfg.Blocks) != 2 {
		t.Fatalf("got:\n%s", cfg.Dump())
	}
	head := cfg.Blocks[0]
	if head.Term != TermCondJump || head.Taken != 0 || head.Next != 1 {
		t.Fatalf("loop back-edge not resolved:\n%s", cfg.Dump())
	}
}

func TestBuildCFGDynamicJumpDispatch(t *testing.T) {
	code := []Instruction{
		ins("PUSH", "0"), ins("CALLDATALOAD"), ins(NameJump),
		ins(NameTag, "3"), ins(NameJumpDest), ins("STOP"),
		ins(NameTag, "4"), ins(NameJumpDest), ins(NamePushTag, "3"), ins(NameJump),
	}
	cfg, bag := build(t, code, Options{})
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
	entry := cfg.Blocks[0]
	if entry.Term != TermDynamic || len(entry.Dispatch) != 1 || entry.Dispatch[0].Tag != 3 {
		t.Fatalf("got:\n%s", cfg.Dump())
	}
}

func TestBuildCFGErrors(t *testing.T) {
	cases := []struct {
		name string
		code []Instruction
		opts Options
		want diag.Code
	}{
		{"undefined tag", []Instruction{ins(NamePushTag, "7"), ins(NameJump)}, Options{}, diag.IRVUndefinedTag},
		{"duplicate tag", []Instruction{ins(NameTag, "1"), ins("STOP"), ins(NameTag, "1"), ins("STOP")}, Options{}, diag.IRVDuplicateTag},
		{"underflow", []Instruction{ins("ADD"), ins("STOP")}, Options{}, diag.IRVStackUnderflow},
		{"unknown", []Instruction{ins("FROB")}, Options{}, diag.IRVUnknownInstruction},
		{"jump to data", []Instruction{ins(NamePushData, "1"), ins(NameJump)}, Options{}, diag.IRVInvalidJump},
		{"dynamic without tags", []Instruction{ins("PUSH", "1"), ins(NameJump)}, Options{}, diag.IRVInvalidJump},
		{"too deep", []Instruction{ins("PUSH", "1"), ins("PUSH", "1"), ins("PUSH", "1"), ins("STOP")}, Options{MaxStack: 2}, diag.RESStackTooDeep},
		{
			"clone budget",
			[]Instruction{
				ins(NameTag, "1"), ins(NameJumpDest), ins("PUSH", "1"), ins(NamePushTag, "1"), ins(NameJump),
			},
			Options{MaxBlocks: 8},
			diag.RESCloneBudget,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, bag := build(t, tc.code, tc.opts)
			if cfg != nil {
				t.Fatalf("expected failure, got:\n%s", cfg.Dump())
			}
			found := false
			for _, d := range bag.Items() {
				if d.Code == tc.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("want %s, got %v", tc.want.ID(), bag.Items())
			}
		})
	}
}

func TestBuildCFGDataElementsInSignature(t *testing.T) {
	code := []Instruction{
		ins(NamePushDataSize, "0"), ins(NamePushData, "0"), ins(NamePushTag, "5"), ins(NameJump),
		ins(NameTag, "5"), ins(NameJumpDest), ins("PUSH", "0"), ins("CODECOPY"), ins("STOP"),
	}
	cfg, bag := build(t, code, Options{})
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
	sig := cfg.Blocks[1].Entry.Signature()
	if sig != "S0,D0" {
		t.Fatalf("signature = %q", sig)
	}
	if !strings.Contains(cfg.Dump(), "tag_5 [S0,D0] exit") {
		t.Fatalf("dump:\n%s", cfg.Dump())
	}
}
