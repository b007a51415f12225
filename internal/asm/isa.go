package asm

import (
	"fmt"
	"sort"
)

// Slot is one operand position of an instruction form.
type Slot uint8

const (
	SlotDst   Slot = iota // rD, byte 2
	SlotA                 // rA, byte 3
	SlotB                 // rB, byte 4
	SlotC                 // rC, byte 5
	SlotImm               // #N, imm16
	SlotStack             // stack[N], imm16
	SlotPool              // =word, imm16 = pool index
	SlotLabel             // .Lname, imm16 = instruction index
	SlotFunc              // @name, imm16 = instruction index
)

func (s Slot) String() string {
	switch s {
	case SlotDst, SlotA, SlotB, SlotC:
		return "register"
	case SlotImm:
		return "immediate"
	case SlotStack:
		return "stack slot"
	case SlotPool:
		return "constant"
	case SlotLabel:
		return "label"
	case SlotFunc:
		return "function"
	}
	return "operand"
}

// OpInfo describes one mnemonic.
type OpInfo struct {
	Mnemonic string
	Code     uint16
	Slots    []Slot
}

const (
	// InstrSize is the encoded size of one instruction.
	InstrSize = 8
	// WordSize is the alignment of the code area and the size of a pool entry.
	WordSize = 32
	// NumRegs is the register count; r0 reads as zero.
	NumRegs = 16
	// MaxIndex bounds instruction, pool and frame indices.
	MaxIndex = 1<<16 - 1
)

var (
	dab   = []Slot{SlotDst, SlotA, SlotB}
	da    = []Slot{SlotDst, SlotA}
	dabc  = []Slot{SlotDst, SlotA, SlotB, SlotC}
	ab    = []Slot{SlotA, SlotB}
	abc   = []Slot{SlotA, SlotB, SlotC}
	d     = []Slot{SlotDst}
	none  = []Slot{}
	dImm  = []Slot{SlotDst, SlotImm}
	immA  = []Slot{SlotImm, SlotA}
	farOp = []Slot{SlotDst, SlotA, SlotB, SlotC, SlotImm}
)

// pointer spaces; storage is keyed, not addressed
var (
	readSpaces  = []string{"heap", "cd", "ret", "stack", "imm"}
	writeSpaces = []string{"heap", "stack", "imm"}
	contexts    = []string{"this", "caller", "callvalue", "gasleft", "isconstructor", "codeaddress"}
	farModes    = []string{"call", "static", "delegate"}
)

// table is built in a fixed order; opcode numbers are the positions and
// are part of the encoding.
var table = func() []OpInfo {
	var t []OpInfo
	add := func(m string, slots []Slot) {
		t = append(t, OpInfo{Mnemonic: m, Code: uint16(len(t)), Slots: slots}) // #nosec G115 -- table is small
	}
	add("nop", none)
	add("hdr", []Slot{SlotImm})
	for _, m := range []string{"add", "sub", "mul", "udiv", "sdiv", "urem", "srem", "and", "or", "xor",
		"shl", "lshr", "ashr", "eq", "ult", "ugt", "slt", "sgt", "exp"} {
		add(m, dab)
	}
	for _, m := range []string{"not", "iszero", "mov"} {
		add(m, da)
	}
	for _, m := range []string{"select", "addmod", "mulmod"} {
		add(m, dabc)
	}
	add("ldi", dImm)
	add("ldc", []Slot{SlotDst, SlotPool})
	add("lds", []Slot{SlotDst, SlotStack})
	add("sts", []Slot{SlotStack, SlotA})
	add("enter", []Slot{SlotImm})
	add("alloca", da)
	add("allocai", dImm)
	add("param", dImm)
	add("arg", immA)
	add("res", dImm)
	add("retv", immA)
	add("call", []Slot{SlotFunc})
	add("ret", none)
	add("gld", dImm)
	add("gst", immA)
	add("sload", da)
	add("sstore", ab)
	add("tload", da)
	add("tstore", ab)
	for _, k := range contexts {
		add("ctx."+k, d)
	}
	add("size.cd", d)
	add("size.ret", d)
	for _, s := range readSpaces {
		add("ld."+s, da)
		add("keccak."+s, dab)
		add("log."+s, []Slot{SlotA, SlotB, SlotImm})
		add("exit.return."+s, ab)
		add("exit.revert."+s, ab)
		for _, m := range farModes {
			add("fcall."+m+"."+s, farOp)
			add("fcall."+m+".sys."+s, farOp)
		}
	}
	for _, s := range writeSpaces {
		add("st."+s, ab)
		add("st8."+s, ab)
		for _, src := range readSpaces {
			add("copy."+s+"."+src, abc)
		}
	}
	add("fgas", []Slot{SlotA})
	add("jmp", []Slot{SlotLabel})
	add("jnz", []Slot{SlotA, SlotLabel})
	add("exit.stop", none)
	add("exit.deploy", none)
	add("trap", none)
	return t
}()

var byMnemonic = func() map[string]*OpInfo {
	m := make(map[string]*OpInfo, len(table))
	for i := range table {
		m[table[i].Mnemonic] = &table[i]
	}
	return m
}()

// Lookup returns the description of a mnemonic.
func Lookup(mnemonic string) (*OpInfo, bool) {
	op, ok := byMnemonic[mnemonic]
	return op, ok
}

// ByCode returns the description of an encoded opcode.
func ByCode(code uint16) (*OpInfo, bool) {
	if int(code) >= len(table) {
		return nil, false
	}
	return &table[code], true
}

// Mnemonics lists every mnemonic in opcode order.
func Mnemonics() []string {
	out := make([]string, len(table))
	for i, op := range table {
		out[i] = op.Mnemonic
	}
	return out
}

// SortedMnemonics lists every mnemonic alphabetically; used by the CLI help.
func SortedMnemonics() []string {
	out := Mnemonics()
	sort.Strings(out)
	return out
}

// Mnemonic helpers used by instruction selection.

func LoadOp(space string) string  { return "ld." + space }
func StoreOp(space string) string { return "st." + space }
func Store8Op(space string) string {
	return "st8." + space
}
func CopyOp(dst, src string) string    { return "copy." + dst + "." + src }
func KeccakOp(space string) string     { return "keccak." + space }
func LogOp(space string) string        { return "log." + space }
func SizeOp(space string) string       { return "size." + space }
func ContextOp(kind string) string     { return "ctx." + kind }
func ExitOp(kind, space string) string { return "exit." + kind + "." + space }

// FarCallOp names the far call of mode through input space.
func FarCallOp(mode string, system bool, space string) string {
	if system {
		return fmt.Sprintf("fcall.%s.sys.%s", mode, space)
	}
	return fmt.Sprintf("fcall.%s.%s", mode, space)
}
