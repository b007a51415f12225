package asm

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"zkvmc/internal/diag"
)

// Binary is an encoded unit.
type Binary struct {
	Code []byte
	// CodeWords is the 32-byte word count of the instruction area.
	CodeWords int
	// PoolWords is the constant pool size in words.
	PoolWords int
	// Markers lists byte offsets of pool words carrying a link marker.
	Markers []int
}

// Assemble parses and encodes assembly text.
func Assemble(text string) (*Binary, error) {
	p, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return Encode(p)
}

// Encode lays out header, instructions, nop padding and the constant pool.
func Encode(p *Program) (*Binary, error) {
	n := len(p.Instrs) + 1
	if n > MaxIndex {
		return nil, errAt(diag.RESCodeTooLarge, 0, 0, "%d instructions exceed the limit of %d", n, MaxIndex)
	}
	for _, r := range p.refs {
		a := &p.Instrs[r.instr].Args[r.arg]
		table := p.Labels
		if a.Kind == SlotFunc {
			table = p.Funcs
		}
		idx, ok := table[a.Name]
		if !ok {
			return nil, errAt(diag.ASMUndefinedLabel, r.line, r.col, "undefined %s %s", a.Kind, a.Name)
		}
		a.Num = uint16(idx + 1) // #nosec G115 -- bounded by n
	}

	words := (n*InstrSize + WordSize - 1) / WordSize
	code := make([]byte, 0, words*WordSize)
	hdr, _ := Lookup("hdr")
	code = appendInstr(code, hdr.Code, [4]uint8{}, uint16(words)) // #nosec G115 -- words <= n/4

	var (
		pool    [][WordSize]byte
		poolIdx = make(map[[WordSize]byte]int)
	)
	for i := range p.Instrs {
		ins := &p.Instrs[i]
		var regs [4]uint8
		var imm uint16
		for j, slot := range ins.Op.Slots {
			a := ins.Args[j]
			switch slot {
			case SlotDst, SlotA, SlotB, SlotC:
				regs[slot-SlotDst] = a.Reg
			case SlotPool:
				idx, ok := poolIdx[a.Word]
				if !ok {
					idx = len(pool)
					if idx >= MaxIndex {
						return nil, errAt(diag.RESConstantPool, ins.Line, ins.Col, "constant pool exceeds %d entries", MaxIndex)
					}
					poolIdx[a.Word] = idx
					pool = append(pool, a.Word)
				}
				v, err := safecast.Conv[uint16](idx)
				if err != nil {
					return nil, fmt.Errorf("pool index: %w", err)
				}
				imm = v
			default:
				imm = a.Num
			}
		}
		code = appendInstr(code, ins.Op.Code, regs, imm)
	}
	nop, _ := Lookup("nop")
	for len(code)%WordSize != 0 {
		code = appendInstr(code, nop.Code, [4]uint8{}, 0)
	}

	bin := &Binary{CodeWords: words, PoolWords: len(pool)}
	for _, w := range pool {
		if IsLibraryMarker(w[:]) || IsFactoryMarker(w[:]) {
			bin.Markers = append(bin.Markers, len(code))
		}
		code = append(code, w[:]...)
	}
	bin.Code = code
	return bin, nil
}

func appendInstr(dst []byte, op uint16, regs [4]uint8, imm uint16) []byte {
	dst = binary.BigEndian.AppendUint16(dst, op)
	dst = append(dst, regs[:]...)
	return binary.BigEndian.AppendUint16(dst, imm)
}

// CodeWords reads the instruction area size from the header.
func CodeWords(code []byte) (int, error) {
	if len(code) < WordSize {
		return 0, fmt.Errorf("artifact shorter than one word")
	}
	hdr, _ := Lookup("hdr")
	if binary.BigEndian.Uint16(code) != hdr.Code {
		return 0, fmt.Errorf("missing header instruction")
	}
	w := int(binary.BigEndian.Uint16(code[6:]))
	if w == 0 || w*WordSize > len(code) {
		return 0, fmt.Errorf("header declares %d code words for %d bytes", w, len(code))
	}
	return w, nil
}
