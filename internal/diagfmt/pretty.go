package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"zkvmc/internal/diag"
	"zkvmc/internal/source"
)

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
// <path>:<line>:<col>: <SEV> [<CODE>] <unit>: <Message>
// затем строку исходника с подчёркиванием ^~~~ по Span и Notes.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	if bag == nil {
		return
	}
	sevColor := map[diag.Severity]*color.Color{
		diag.SevError:   color.New(color.FgRed, color.Bold),
		diag.SevWarning: color.New(color.FgYellow, color.Bold),
		diag.SevInfo:    color.New(color.FgCyan),
	}
	noteColor := color.New(color.FgBlue)
	caretColor := color.New(color.FgGreen, color.Bold)
	for _, c := range []*color.Color{sevColor[diag.SevError], sevColor[diag.SevWarning], sevColor[diag.SevInfo], noteColor, caretColor} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, d := range bag.Items() {
		sev := d.Severity.String()
		if c, ok := sevColor[d.Severity]; ok {
			sev = c.Sprint(sev)
		}
		unit := ""
		if d.Unit != "" {
			unit = " " + d.Unit + ":"
		}
		fmt.Fprintf(w, "%s: %s [%s]%s %s\n", location(fs, d.Primary, opts), sev, d.Code.ID(), unit, d.Message)
		writeSnippet(w, fs, d.Primary, opts, caretColor)
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(w, "  %s %s: %s\n", noteColor.Sprint("note:"), location(fs, n.Span, opts), n.Msg)
		}
	}
}

func location(fs *source.FileSet, sp source.Span, opts PrettyOpts) string {
	f := spanFile(fs, sp)
	if f == nil {
		return "<project>"
	}
	start, _ := fs.Resolve(sp)
	return fmt.Sprintf("%s:%d:%d", formatPath(f, opts.PathMode, opts.BaseDir), start.Line, start.Col)
}

// writeSnippet prints the primary line plus opts.Context lines around it.
// Legacy assembly listings are line-per-instruction, so the same works there.
func writeSnippet(w io.Writer, fs *source.FileSet, sp source.Span, opts PrettyOpts, caret *color.Color) {
	f := spanFile(fs, sp)
	if f == nil || len(f.Content) == 0 {
		return
	}
	start, end := fs.Resolve(sp)
	if start.Line == 0 {
		return
	}
	ctx := uint32(max(opts.Context, 0))
	first := start.Line
	if first > ctx {
		first -= ctx
	} else {
		first = 1
	}
	last := start.Line + ctx
	gutter := len(fmt.Sprint(last))
	for line := first; line <= last; line++ {
		text := strings.TrimRight(f.GetLine(line), "\r")
		if text == "" && line != start.Line {
			continue
		}
		if opts.Width > 0 && runewidth.StringWidth(text) > int(opts.Width) {
			text = runewidth.Truncate(text, int(opts.Width), "...")
		}
		fmt.Fprintf(w, "  %*d | %s\n", gutter, line, text)
		if line != start.Line || f.Flags&source.FileInstructions != 0 {
			continue
		}
		prefix := runewidth.StringWidth(prefixOf(text, start.Col))
		width := 1
		if end.Line == start.Line && end.Col > start.Col {
			width = max(runewidth.StringWidth(prefixOf(text, end.Col))-prefix, 1)
		}
		marks := "^" + strings.Repeat("~", width-1)
		fmt.Fprintf(w, "  %*s | %s%s\n", gutter, "", strings.Repeat(" ", prefix), caret.Sprint(marks))
	}
}

// prefixOf returns the part of text before 1-based byte column col.
func prefixOf(text string, col uint32) string {
	n := int(col) - 1
	if n <= 0 {
		return ""
	}
	if n > len(text) {
		return text
	}
	return text[:n]
}
