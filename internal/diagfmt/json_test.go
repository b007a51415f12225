package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"zkvmc/internal/diag"
	"zkvmc/internal/source"
)

func sampleBag(t *testing.T) (*diag.Bag, *source.FileSet) {
	t.Helper()
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("test.yul", []byte("{\n  selfdestruct(0)\n}\n"))
	bag := diag.NewBag(10)
	d := diag.New(diag.SevError, diag.UNSSelfDestruct, source.Span{File: fileID, Start: 4, End: 19}, "selfdestruct is not supported").
		WithUnit("test.yul:T").
		WithNote(source.Span{File: fileID, Start: 0, End: 1}, "in this block")
	bag.Add(d)
	bag.Add(diag.New(diag.SevWarning, diag.ADVUnresolvedPlaceholder, source.Span{File: fileID}, "placeholder"))
	return bag, fs
}

func TestJSONBasic(t *testing.T) {
	bag, fs := sampleBag(t)
	var buf bytes.Buffer
	if err := JSON(&buf, bag, fs, JSONOpts{IncludePositions: true, PathMode: PathModeBasename, IncludeNotes: true}); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	var output DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("Invalid JSON output: %v\nOutput: %s", err, buf.String())
	}
	if output.Count != 2 || len(output.Diagnostics) != 2 {
		t.Fatalf("count = %d", output.Count)
	}
	d := output.Diagnostics[0]
	if d.Severity != "ERROR" || d.Code != "UNS2005" || d.Category != "unsupported" || d.Unit != "test.yul:T" {
		t.Fatalf("diagnostic = %+v", d)
	}
	if d.Location.File != "test.yul" || d.Location.StartLine != 2 || d.Location.StartCol != 3 {
		t.Fatalf("location = %+v", d.Location)
	}
	if len(d.Notes) != 1 || d.Notes[0].Message != "in this block" {
		t.Fatalf("notes = %+v", d.Notes)
	}
}

func TestJSONMaxAndNotes(t *testing.T) {
	bag, fs := sampleBag(t)
	out := BuildDiagnosticsOutput(bag, fs, JSONOpts{Max: 1})
	if out.Count != 1 {
		t.Fatalf("count = %d", out.Count)
	}
	if len(out.Diagnostics[0].Notes) != 0 {
		t.Fatalf("notes included without IncludeNotes")
	}
	if out.Diagnostics[0].Location.StartLine != 0 {
		t.Fatalf("positions included without IncludePositions")
	}
}

func TestSarif(t *testing.T) {
	bag, fs := sampleBag(t)
	var buf bytes.Buffer
	if err := Sarif(&buf, bag, fs, SarifRunMeta{ToolName: "zkvmc", ToolVersion: "test", InvocationArgs: []string{"build"}}); err != nil {
		t.Fatalf("sarif: %v", err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("invalid sarif: %v", err)
	}
	if log.Version != "2.1.0" || len(log.Runs) != 1 {
		t.Fatalf("log = %+v", log)
	}
	run := log.Runs[0]
	if len(run.Results) != 2 || run.Results[0].Level != "error" || run.Results[1].Level != "warning" {
		t.Fatalf("results = %+v", run.Results)
	}
	if len(run.Tool.Driver.Rules) != 2 || run.Tool.Driver.Rules[0].ID != "UNS2005" {
		t.Fatalf("rules = %+v", run.Tool.Driver.Rules)
	}
	if run.Invocations[0].ExecutionSuccessful {
		t.Fatalf("invocation with errors reported as successful")
	}
	if len(run.Results[0].RelatedLocations) != 1 {
		t.Fatalf("notes not mapped to related locations")
	}
}
