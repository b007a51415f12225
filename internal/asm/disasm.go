package asm

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Disassemble renders the instruction area of code as assembly text that
// encodes back to the same bytes. Bytes after the pool are ignored.
func Disassemble(code []byte) (string, error) {
	words, err := CodeWords(code)
	if err != nil {
		return "", err
	}
	count := words * WordSize / InstrSize
	type decoded struct {
		op   *OpInfo
		regs [4]uint8
		imm  uint16
	}
	ins := make([]decoded, count)
	labels := make(map[int]bool)
	funcs := make(map[int]bool)
	for i := 1; i < count; i++ {
		raw := code[i*InstrSize : (i+1)*InstrSize]
		op, ok := ByCode(binary.BigEndian.Uint16(raw))
		if !ok || op.Mnemonic == "hdr" {
			return "", fmt.Errorf("instruction %d: bad opcode %#x", i, binary.BigEndian.Uint16(raw))
		}
		d := decoded{op: op, imm: binary.BigEndian.Uint16(raw[6:])}
		copy(d.regs[:], raw[2:6])
		for _, s := range op.Slots {
			switch s {
			case SlotLabel:
				labels[int(d.imm)] = true
			case SlotFunc:
				funcs[int(d.imm)] = true
			}
		}
		ins[i] = d
	}

	poolBase := words * WordSize
	var sb strings.Builder
	for i := 1; i < count; i++ {
		if funcs[i] {
			fmt.Fprintf(&sb, ".func @f%d\n", i)
		}
		if labels[i] {
			fmt.Fprintf(&sb, ".L%d:\n", i)
		}
		d := ins[i]
		sb.WriteString("  ")
		sb.WriteString(d.op.Mnemonic)
		for j, s := range d.op.Slots {
			if j == 0 {
				sb.WriteByte(' ')
			} else {
				sb.WriteString(", ")
			}
			switch s {
			case SlotDst, SlotA, SlotB, SlotC:
				fmt.Fprintf(&sb, "r%d", d.regs[s-SlotDst])
			case SlotImm:
				fmt.Fprintf(&sb, "#%d", d.imm)
			case SlotStack:
				fmt.Fprintf(&sb, "stack[%d]", d.imm)
			case SlotLabel:
				fmt.Fprintf(&sb, ".L%d", d.imm)
			case SlotFunc:
				fmt.Fprintf(&sb, "@f%d", d.imm)
			case SlotPool:
				off := poolBase + int(d.imm)*WordSize
				if off+WordSize > len(code) {
					return "", fmt.Errorf("instruction %d: pool index %d out of range", i, d.imm)
				}
				sb.WriteString("=0x")
				sb.WriteString(hex.EncodeToString(code[off : off+WordSize]))
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
