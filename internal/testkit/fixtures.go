// Package testkit holds fixtures shared by package tests: loading small
// projects and lowering them to native modules.
package testkit

import (
	"context"
	"fmt"
	"testing"

	"zkvmc/internal/diag"
	"zkvmc/internal/lower"
	"zkvmc/internal/native"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/symbols"
)

// RuntimeYul wraps runtime code into object name with an empty constructor.
func RuntimeYul(name, code string) string {
	return fmt.Sprintf(`object %q {
    code { return(0, 0) }
    object %q {
        code { %s }
    }
}`, name, name+"_deployed", code)
}

// Load builds a project from the loader callback and fails the test on any
// loading error.
func Load(t testing.TB, add func(*project.Loader)) (*project.Project, *symbols.ProjectTable, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(200)
	ld := project.NewLoader(source.NewFileSet(), bag)
	add(ld)
	p, err := ld.Finish()
	if err != nil {
		t.Fatalf("load project: %v (%v)", err, bag.Items())
	}
	table := symbols.BuildProjectTable(p, bag)
	if bag.HasErrors() {
		t.Fatalf("project table: %v", bag.Items())
	}
	return p, table, bag
}

// LowerYul lowers a single Yul text unit and fails the test when lowering
// reports an error.
func LowerYul(t testing.TB, settings project.Settings, src string) *native.Module {
	t.Helper()
	p, table, bag := Load(t, func(ld *project.Loader) { ld.AddYulText("test.yul", []byte(src)) })
	if len(p.Units) != 1 {
		t.Fatalf("want one unit, got %d", len(p.Units))
	}
	u := p.Units[0]
	mod, ok := lower.Unit(context.Background(), lower.Request{
		Unit:     u,
		Project:  table,
		Settings: settings,
		Reporter: diag.BagReporter{Bag: bag, Unit: u.Name},
	})
	if !ok {
		t.Fatalf("lower %s: %v", u.Name, bag.Items())
	}
	return mod
}

// Word32 encodes v as a big-endian 32-byte word.
func Word32(v uint64) []byte {
	w := make([]byte, 32)
	for i := 31; i >= 24; i-- {
		w[i] = byte(v)
		v >>= 8
	}
	return w
}
