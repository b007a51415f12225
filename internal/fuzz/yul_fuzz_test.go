package fuzztests

import (
	"testing"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir/evmla"
	"zkvmc/internal/ir/yul"
	"zkvmc/internal/source"
)

var yulSeeds = []string{
	`object "A" { code { } }`,
	`object "A" { code { return(0, 0) } object "A_deployed" { code { mstore(0, add(1, 2)) return(0, 32) } } }`,
	`object "F" { code { function f(a) -> r { r := mul(a, 2) } sstore(0, f(21)) } }`,
	`object "S" { code { switch calldataload(0) case 0 { stop() } default { revert(0, 0) } } }`,
	`object "L" { code { for { let i := 0 } lt(i, 10) { i := add(i, 1) } { if eq(i, 5) { break } } } }`,
	`object "D" { code { datacopy(0, dataoffset("D_deployed"), datasize("D_deployed")) } object "D_deployed" { code { } } }`,
	`object "Bad" { code { let } }`,
}

func FuzzYulParseAndValidate(f *testing.F) {
	addFileSeeds(f, ".yul")
	for _, s := range yulSeeds {
		f.Add([]byte(s))
	}
	f.Fuzz(func(_ *testing.T, input []byte) {
		if len(input) > maxFuzzInput {
			input = input[:maxFuzzInput]
		}
		fs := source.NewFileSet()
		file := fs.AddVirtual("fuzz.yul", input)
		obj, err := yul.ParseText("fuzz.yul", input, file)
		if err != nil {
			return
		}
		bag := diag.NewBag(64)
		_ = yul.Validate(obj, diag.BagReporter{Bag: bag, Unit: "fuzz.yul"})
	})
}

func FuzzYulJSON(f *testing.F) {
	addFileSeeds(f, ".yul.json")
	f.Add([]byte(`{"name":"A","code":{"nodeType":"YulBlock","src":"0:0:0","statements":[]}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`[`))
	f.Fuzz(func(_ *testing.T, input []byte) {
		if len(input) > maxFuzzInput {
			input = input[:maxFuzzInput]
		}
		fs := source.NewFileSet()
		_, _ = yul.DecodeJSON(input, fs.AddVirtual("fuzz.yul.json", input))
	})
}

func FuzzEVMLADecode(f *testing.F) {
	addFileSeeds(f, ".evmla.json")
	f.Add([]byte(`{".code":[{"name":"PUSH","value":"80"},{"name":"STOP"}]}`))
	f.Add([]byte(`{".code":[{"name":"STOP"}],".data":{"0":{".code":[{"name":"INVALID"}]}}}`))
	f.Fuzz(func(_ *testing.T, input []byte) {
		if len(input) > maxFuzzInput {
			input = input[:maxFuzzInput]
		}
		a, err := evmla.Decode(input)
		if err != nil {
			return
		}
		_ = evmla.Listing(a)
		_ = a.Dependencies()
		_ = a.Libraries()
	})
}
