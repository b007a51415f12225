package fuzztests

import (
	"bytes"
	"testing"

	"zkvmc/internal/asm"
	"zkvmc/internal/link"
	"zkvmc/internal/metadata"
	"zkvmc/internal/project"
)

var asmSeeds = []string{
	".func @main\n  enter #0\n  exit.stop\n",
	".func @main\n  enter #0\n  ldc r1, =lib:\"lib.yul:Math\"\n  ldc r2, =dep:\"c.yul:Child\"\n  exit.stop\n",
	".func @main\n  enter #0\n  ldc r1, =0x2a\n  exit.stop\n",
	".func @main\n  bogus r1\n",
}

// FuzzAssembleRoundTrip checks that whatever assembles also disassembles
// to text that encodes to the same bytes.
func FuzzAssembleRoundTrip(f *testing.F) {
	addFileSeeds(f, ".zasm")
	for _, s := range asmSeeds {
		f.Add([]byte(s))
	}
	f.Fuzz(func(t *testing.T, input []byte) {
		if len(input) > maxFuzzInput {
			input = input[:maxFuzzInput]
		}
		bin, err := asm.Assemble(string(input))
		if err != nil {
			return
		}
		text, err := asm.Disassemble(bin.Code)
		if err != nil {
			t.Fatalf("disassemble: %v", err)
		}
		again, err := asm.Assemble(text)
		if err != nil {
			t.Fatalf("reassemble: %v\n%s", err, text)
		}
		if !bytes.Equal(bin.Code, again.Code) {
			t.Fatalf("round trip changed bytes\n%s", text)
		}
	})
}

// FuzzArtifactParsing feeds arbitrary bytes to the artifact readers behind
// the link and asm commands.
func FuzzArtifactParsing(f *testing.F) {
	for _, s := range asmSeeds[:3] {
		bin, err := asm.Assemble(s)
		if err != nil {
			f.Fatalf("seed: %v", err)
		}
		art, err := metadata.Append(bin.Code, metadata.NewSettings("yul", project.Settings{}))
		if err != nil {
			f.Fatalf("seed: %v", err)
		}
		f.Add(art)
		f.Add(bin.Code)
	}
	f.Add([]byte{})
	f.Fuzz(func(_ *testing.T, input []byte) {
		_, _, _ = metadata.Split(input)
		_, _, _ = link.Markers(input)
		_, _, _ = link.Patch(input, nil, nil)
		_, _ = asm.Disassemble(input)
	})
}
