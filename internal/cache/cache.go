// Package cache stores assembled, unlinked units on disk so unchanged units
// skip lowering and code generation on the next build.
package cache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"zkvmc/internal/diag"
	"zkvmc/internal/metadata"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/symbols"
	"zkvmc/internal/version"
)

// Текущая версия схемы; увеличивать при изменении Entry.
const schemaVersion uint16 = 2

// Cache is a directory of msgpack entries keyed by Key. Safe for concurrent
// use by the worker pool. A nil *Cache is a valid disabled cache.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Warning is a cached non-error diagnostic. Spans keep their offsets only;
// the file is re-attached on load since file ids differ between runs.
type Warning struct {
	Code    uint16
	Message string
	Start   uint32
	End     uint32
}

// Entry is one compiled unit before linking.
type Entry struct {
	Schema   uint16
	Name     string
	Artifact []byte
	CodeHash [32]byte
	Assembly string
	LLVM     string
	Native   string
	Warnings []Warning
}

// Dumps selects the optional text outputs stored with an entry.
type Dumps struct {
	LLVM   bool
	Native bool
}

// Open returns a cache rooted at dir. An empty dir selects
// $XDG_CACHE_HOME/zkvmc (or ~/.cache/zkvmc).
func Open(dir string) (*Cache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, version.Compiler)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Key is digest(unit source, settings, compiler version). The unit's
// resolved dependency names and immutables take part as well since the
// generated code embeds them. A hit must carry every requested dump.
func Key(u *project.Unit, info *symbols.UnitInfo, s metadata.Settings, dumps Dumps) (project.Digest, error) {
	blob, err := msgpack.Marshal(&s)
	if err != nil {
		return project.Digest{}, fmt.Errorf("cache key: %w", err)
	}
	deps := []project.Digest{
		project.DigestBytes(blob),
		project.DigestBytes([]byte(version.Compiler + " " + version.Version)),
		project.DigestBytes([]byte(u.Name)),
	}
	if dumps.LLVM {
		deps = append(deps, project.DigestBytes([]byte("llvm")))
	}
	if dumps.Native {
		deps = append(deps, project.DigestBytes([]byte("native")))
	}
	if info != nil {
		names := make([]string, 0, len(info.Dependencies))
		for local, full := range info.Dependencies {
			names = append(names, local+"="+full)
		}
		sort.Strings(names)
		for _, n := range names {
			deps = append(deps, project.DigestBytes([]byte(n)))
		}
		for _, imm := range info.Immutables {
			deps = append(deps, project.DigestBytes([]byte("imm:"+imm)))
		}
	}
	return project.Combine(u.ContentHash, deps...), nil
}

func (c *Cache) pathFor(key project.Digest) string {
	hexKey := hex.EncodeToString(key[:])
	// подкаталог по первым двум символам, чтобы не раздувать один каталог
	return filepath.Join(c.dir, "units", hexKey[:2], hexKey+".mp")
}

// Put writes e atomically.
func (c *Cache) Put(key project.Digest, e *Entry) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		// после успешного Rename файла уже нет
		_ = os.Remove(tmp)
	}()

	e.Schema = schemaVersion
	if err := msgpack.NewEncoder(f).Encode(e); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Get loads the entry for key. A missing entry or one written by another
// schema is a miss, not an error.
func (c *Cache) Get(key project.Digest, out *Entry) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	// #nosec G304 -- path is derived from the cache dir and a hex digest
	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer func() { _ = f.Close() }()
	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	if out.Schema != schemaVersion {
		return false, nil
	}
	return true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// тривиально: переименуем каталог и удалим
	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o750)
}

// Warnings converts reported diagnostics to their cached form. Errors are
// never cached: a failed unit has no entry.
func Warnings(items []diag.Diagnostic) []Warning {
	out := make([]Warning, 0, len(items))
	for _, d := range items {
		if d.Severity >= diag.SevError {
			continue
		}
		out = append(out, Warning{Code: uint16(d.Code), Message: d.Message, Start: d.Primary.Start, End: d.Primary.End})
	}
	return out
}

// Replay reports cached warnings against file.
func Replay(rep diag.Reporter, file source.FileID, ws []Warning) {
	for _, w := range ws {
		diag.ReportWarning(rep, diag.Code(w.Code), source.Span{File: file, Start: w.Start, End: w.End}, w.Message).Emit()
	}
}
