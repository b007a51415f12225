package diagfmt

import (
	"bytes"
	"strings"
	"testing"

	"zkvmc/internal/diag"
	"zkvmc/internal/source"
)

// TestPathModes проверяет различные режимы форматирования путей
func TestPathModes(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("{\n  let x := foo(1)\n}\n")
	fileID := fs.AddVirtual("/home/user/project/src/test.yul", content)

	bag := diag.NewBag(10)
	bag.Add(diag.New(diag.SevError, diag.IRVUndefinedIdentifier,
		source.Span{File: fileID, Start: 13, End: 16}, "undefined function \"foo\"").WithUnit("src/test.yul:T"))

	tests := []struct {
		name     string
		mode     PathMode
		contains string
	}{
		{"Absolute path", PathModeAbsolute, "/home/user/project/src/test.yul:2:12:"},
		{"Relative path", PathModeRelative, "src/test.yul:2:12:"},
		{"Basename only", PathModeBasename, "test.yul:2:12:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Pretty(&buf, bag, fs, PrettyOpts{Context: 1, PathMode: tt.mode, BaseDir: "/home/user/project"})
			if !strings.HasPrefix(buf.String(), tt.contains) {
				t.Errorf("Expected output to contain %q, got:\n%s", tt.contains, buf.String())
			}
			if !strings.Contains(buf.String(), "ERROR [IRV1002] src/test.yul:T:") {
				t.Errorf("missing severity/code/unit, got:\n%s", buf.String())
			}
		})
	}
}

func TestPrettySnippet(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("a.yul", []byte("{\n  sstore(0, foo)\n}\n"))
	bag := diag.NewBag(4)
	d := diag.New(diag.SevWarning, diag.ADVUnboundedRecursion, source.Span{File: fileID, Start: 14, End: 17}, "recursion")
	d = d.WithNote(source.Span{File: fileID, Start: 4, End: 10}, "called here")
	bag.Add(d)

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{ShowNotes: true})
	out := buf.String()
	if !strings.Contains(out, "2 |   sstore(0, foo)") {
		t.Fatalf("missing source line:\n%s", out)
	}
	if !strings.Contains(out, "  | "+strings.Repeat(" ", 12)+"^~~\n") {
		t.Fatalf("caret misplaced:\n%s", out)
	}
	if !strings.Contains(out, "note: a.yul:2:3: called here") {
		t.Fatalf("missing note:\n%s", out)
	}
}

func TestPrettyProjectLevel(t *testing.T) {
	bag := diag.NewBag(4)
	bag.Add(diag.NewError(diag.PRJUnknownContract, source.Span{}, "contract x.yul:X is not part of the project"))
	var buf bytes.Buffer
	Pretty(&buf, bag, source.NewFileSet(), PrettyOpts{})
	if !strings.HasPrefix(buf.String(), "<project>: ERROR [PRJ7003] contract") {
		t.Fatalf("output:\n%s", buf.String())
	}
}

func TestPathModeAuto(t *testing.T) {
	f := &source.File{Path: "/very/long/absolute/path/to/some/nested/directory/file.yul"}
	if got := formatPath(f, PathModeAuto, ""); got != "file.yul" {
		t.Fatalf("auto = %q", got)
	}
	f = &source.File{Path: "test.yul"}
	if got := formatPath(f, PathModeAuto, ""); got != "test.yul" {
		t.Fatalf("auto = %q", got)
	}
}

func TestParsePathMode(t *testing.T) {
	for _, m := range []PathMode{PathModeAuto, PathModeAbsolute, PathModeRelative, PathModeBasename} {
		got, err := ParsePathMode(m.String())
		if err != nil || got != m {
			t.Fatalf("ParsePathMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParsePathMode("short"); err == nil {
		t.Fatalf("expected error")
	}
}
