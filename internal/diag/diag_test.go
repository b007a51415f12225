package diag

import (
	"testing"

	"zkvmc/internal/source"
)

func TestCodeIDsAndCategories(t *testing.T) {
	cases := []struct {
		code Code
		id   string
		cat  Category
	}{
		{IRVUndefinedTag, "IRV1007", CatValidation},
		{UNSSelfDestruct, "UNS2005", CatUnsupported},
		{LNKLibraryCycle, "LNK3001", CatLinking},
		{ASMSyntax, "ASM4001", CatAssembler},
		{RESStackTooDeep, "RES5001", CatResource},
		{ADVUnboundedRecursion, "ADV6001", CatAdvisory},
		{PRJManifest, "PRJ7001", CatProject},
		{UnknownCode, "E0000", CatUnknown},
	}
	for _, c := range cases {
		if got := c.code.ID(); got != c.id {
			t.Fatalf("%d: want id %s, got %s", c.code, c.id, got)
		}
		if got := c.code.Category(); got != c.cat {
			t.Fatalf("%d: want category %s, got %s", c.code, c.cat, got)
		}
	}
	for code := range codeDescription {
		if code.Title() == "" {
			t.Fatalf("code %d has empty title", code)
		}
	}
}

func TestBagLimitKeepsErrors(t *testing.T) {
	bag := NewBag(1)
	r := BagReporter{Bag: bag, Unit: "a.sol:A"}
	r.Report(ADVUnboundedRecursion, SevWarning, source.Span{}, "w1", nil)
	r.Report(ADVUnboundedRecursion, SevWarning, source.Span{}, "w2", nil)
	ReportError(r, UNSSelfDestruct, source.Span{}, "selfdestruct").Emit()

	if bag.Len() != 2 {
		t.Fatalf("expected warning + error, got %d", bag.Len())
	}
	if !bag.HasErrors() || !bag.HasWarnings() {
		t.Fatalf("expected both errors and warnings")
	}
	if bag.Items()[1].Unit != "a.sol:A" {
		t.Fatalf("unit not propagated: %+v", bag.Items()[1])
	}
}

func TestBagSortDedup(t *testing.T) {
	bag := NewBag(0)
	bag.Add(NewError(IRVUndefinedTag, source.Span{Start: 4, End: 5}, "tag 3").WithUnit("b:B"))
	bag.Add(NewError(IRVUndefinedTag, source.Span{Start: 4, End: 5}, "tag 3").WithUnit("b:B"))
	bag.Add(New(SevWarning, ADVUnboundedRecursion, source.Span{Start: 1, End: 2}, "f").WithUnit("a:A"))
	bag.Sort()
	bag.Dedup()
	if bag.Len() != 2 {
		t.Fatalf("expected 2 after dedup, got %d", bag.Len())
	}
	if bag.Items()[0].Unit != "a:A" {
		t.Fatalf("expected unit-ordered output, got %+v", bag.Items())
	}
}

func TestFormatShortDiagnostics(t *testing.T) {
	fs := source.NewFileSet()
	f := fs.AddVirtual("c.yul", []byte("a\nselfdestruct(0)\n"))
	diags := []Diagnostic{
		NewError(UNSSelfDestruct, source.Span{File: f, Start: 2, End: 14}, "selfdestruct").
			WithUnit("c.yul:C").
			WithNote(source.Span{File: f, Start: 0, End: 1}, "in object C"),
	}
	want := "error UNS2005 c.yul:C c.yul:2:1 selfdestruct\n" +
		"note UNS2005 c.yul:C c.yul:1:1 in object C"
	if got := FormatShortDiagnostics(diags, fs, true); got != want {
		t.Fatalf("want:\n%s\ngot:\n%s", want, got)
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(0)
	r := NewDedupReporter(BagReporter{Bag: bag})
	for i := 0; i < 3; i++ {
		r.Report(LNKMissingLibrary, SevError, source.Span{}, "lib", nil)
	}
	if bag.Len() != 1 {
		t.Fatalf("expected 1, got %d", bag.Len())
	}
	if r.Dropped() != 2 {
		t.Fatalf("dropped = %d", r.Dropped())
	}
}
