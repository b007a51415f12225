package cache

import (
	"bytes"
	"testing"

	"zkvmc/internal/diag"
	"zkvmc/internal/metadata"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/symbols"
)

func TestPutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var key project.Digest
	key[0] = 0xab
	in := &Entry{Name: "a.yul:A", Artifact: []byte{1, 2, 3}, Assembly: ".unit \"a.yul:A\"\n"}
	in.CodeHash[0] = 1
	if err := c.Put(key, in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out Entry
	ok, err := c.Get(key, &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Name != in.Name || !bytes.Equal(out.Artifact, in.Artifact) || out.CodeHash != in.CodeHash || out.Assembly != in.Assembly {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	key[1] = 1
	if ok, err := c.Get(key, &out); ok || err != nil {
		t.Fatalf("unexpected hit: ok=%v err=%v", ok, err)
	}
}

func TestDropAll(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var key project.Digest
	if err := c.Put(key, &Entry{Name: "x"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.DropAll(); err != nil {
		t.Fatalf("drop: %v", err)
	}
	var out Entry
	if ok, _ := c.Get(key, &out); ok {
		t.Fatalf("entry survived DropAll")
	}
	if err := c.Put(key, &Entry{Name: "y"}); err != nil {
		t.Fatalf("put after drop: %v", err)
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *Cache
	var out Entry
	if ok, err := c.Get(project.Digest{}, &out); ok || err != nil {
		t.Fatalf("nil cache: ok=%v err=%v", ok, err)
	}
	if err := c.Put(project.Digest{}, &Entry{}); err != nil {
		t.Fatalf("nil put: %v", err)
	}
}

func TestKeyDependsOnInputs(t *testing.T) {
	u := &project.Unit{Name: "a.yul:A", ContentHash: project.DigestBytes([]byte("code"))}
	info := &symbols.UnitInfo{Name: u.Name, Dependencies: map[string]string{"B": "b.yul:B"}}
	s := metadata.NewSettings("yul", project.Settings{})

	base, err := Key(u, info, s, Dumps{})
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	again, _ := Key(u, info, s, Dumps{})
	if base != again {
		t.Fatalf("key is not stable")
	}

	s2 := metadata.NewSettings("yul", project.Settings{Optimizer: project.OptSize})
	if k, _ := Key(u, info, s2, Dumps{}); k == base {
		t.Fatalf("settings do not affect the key")
	}
	if k, _ := Key(u, info, s, Dumps{LLVM: true}); k == base {
		t.Fatalf("llvm output does not affect the key")
	}
	native, _ := Key(u, info, s, Dumps{Native: true})
	if native == base {
		t.Fatalf("native output does not affect the key")
	}
	if both, _ := Key(u, info, s, Dumps{LLVM: true, Native: true}); both == native {
		t.Fatalf("llvm output does not affect the native key")
	}
	info2 := &symbols.UnitInfo{Name: u.Name, Dependencies: map[string]string{"B": "c.yul:B"}}
	if k, _ := Key(u, info2, s, Dumps{}); k == base {
		t.Fatalf("dependency names do not affect the key")
	}
	u2 := *u
	u2.ContentHash = project.DigestBytes([]byte("other"))
	if k, _ := Key(&u2, info, s, Dumps{}); k == base {
		t.Fatalf("source does not affect the key")
	}
}

func TestWarningsReplay(t *testing.T) {
	items := []diag.Diagnostic{
		{Severity: diag.SevWarning, Code: diag.ADVUnresolvedPlaceholder, Message: "w", Primary: source.Span{File: 7, Start: 3, End: 9}},
		{Severity: diag.SevError, Code: diag.LNKMissingLibrary, Message: "e"},
	}
	ws := Warnings(items)
	if len(ws) != 1 {
		t.Fatalf("errors must not be cached: %+v", ws)
	}
	bag := diag.NewBag(0)
	Replay(diag.BagReporter{Bag: bag, Unit: "a.yul:A"}, 2, ws)
	got := bag.Items()
	if len(got) != 1 || got[0].Primary != (source.Span{File: 2, Start: 3, End: 9}) || got[0].Code != diag.ADVUnresolvedPlaceholder {
		t.Fatalf("replayed = %+v", got)
	}
}
