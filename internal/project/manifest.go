package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Manifest is the decoded zkvmc.toml.
type Manifest struct {
	Path string
	Root string

	Project   ManifestProject   `toml:"project"`
	Input     ManifestInput     `toml:"input"`
	Output    ManifestOutput    `toml:"output"`
	Optimizer ManifestOptimizer `toml:"optimizer"`
	Libraries map[string]string `toml:"libraries"`
	Build     ManifestBuild     `toml:"build"`
}

type ManifestProject struct {
	Name string `toml:"name"`
}

type ManifestInput struct {
	Files []string `toml:"files"`
}

type ManifestOutput struct {
	Dir               string   `toml:"dir"`
	Contracts         []string `toml:"contracts"`
	AllowPlaceholders bool     `toml:"allow_placeholders"`
	EmitAsm           bool     `toml:"emit_asm"`
	EmitLLVM          bool     `toml:"emit_llvm"`
	EmitNative        bool     `toml:"emit_native"`
}

type ManifestOptimizer struct {
	Level string `toml:"level"`
}

type ManifestBuild struct {
	Jobs     int      `toml:"jobs"`
	Cache    string   `toml:"cache"`
	Suppress []string `toml:"suppress"`
}

var (
	// ErrProjectSectionMissing indicates that [project] is missing in zkvmc.toml.
	ErrProjectSectionMissing = errors.New("missing [project]")
	// ErrNoInputs indicates that [input].files matched nothing.
	ErrNoInputs = errors.New("[input].files matched no files")
)

// LoadManifest parses zkvmc.toml at path.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("project") {
		return nil, fmt.Errorf("%s: %w", path, ErrProjectSectionMissing)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	m.Path = path
	m.Root = filepath.Dir(path)
	return &m, nil
}

// LoadProjectManifest finds and loads the manifest above startDir.
func LoadProjectManifest(startDir string) (*Manifest, bool, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := LoadManifest(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

// Settings converts the manifest into build settings.
func (m *Manifest) Settings() (Settings, error) {
	var s Settings
	lvl, err := ParseOptLevel(m.Optimizer.Level)
	if err != nil {
		return s, fmt.Errorf("%s: [optimizer].level: %w", m.Path, err)
	}
	sup, err := NormalizeSuppressed(m.Build.Suppress)
	if err != nil {
		return s, fmt.Errorf("%s: [build].suppress: %w", m.Path, err)
	}
	s.Optimizer = lvl
	s.Suppressed = sup
	s.AllowPlaceholders = m.Output.AllowPlaceholders
	s.EmitAssembly = m.Output.EmitAsm
	s.EmitLLVM = m.Output.EmitLLVM
	s.EmitNative = m.Output.EmitNative
	s.Contracts = m.Output.Contracts
	s.Jobs = m.Build.Jobs
	if m.Build.Cache != "" {
		s.CacheDir = m.resolve(m.Build.Cache)
	}
	return s, nil
}

// LibraryTable parses [libraries].
func (m *Manifest) LibraryTable() (Libraries, error) {
	libs, err := LibrariesFromMap(m.Libraries)
	if err != nil {
		return nil, fmt.Errorf("%s: [libraries]: %w", m.Path, err)
	}
	return libs, nil
}

// OutputDir returns the absolute output directory (default "out").
func (m *Manifest) OutputDir() string {
	dir := m.Output.Dir
	if dir == "" {
		dir = "out"
	}
	return m.resolve(dir)
}

// InputFiles expands [input].files globs relative to the project root.
// Matches escaping the root are rejected.
func (m *Manifest) InputFiles() ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range m.Input.Files {
		matches, err := filepath.Glob(m.resolve(pattern))
		if err != nil {
			return nil, fmt.Errorf("%s: [input].files %q: %w", m.Path, pattern, err)
		}
		for _, match := range matches {
			if !pathWithin(m.Root, match) {
				return nil, fmt.Errorf("%s: input %q escapes project root", m.Path, match)
			}
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			out = append(out, match)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", m.Path, ErrNoInputs)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, filepath.FromSlash(p))
}
