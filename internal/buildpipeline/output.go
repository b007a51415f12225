package buildpipeline

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"zkvmc/internal/project"
)

// OutputFile is the combined JSON written next to the binaries.
const OutputFile = "combined.json"

type jsonPlaceholder struct {
	Library string `json:"library"`
	Offsets []int  `json:"offsets"`
}

type jsonArtifact struct {
	Bytecode            string            `json:"bytecode"`
	CodeHash            string            `json:"codeHash"`
	FactoryDependencies map[string]string `json:"factoryDependencies"`
	UnresolvedLibraries []jsonPlaceholder `json:"unresolvedLibraries,omitempty"`
	Assembly            string            `json:"assembly,omitempty"`
	Warnings            []string          `json:"warnings,omitempty"`
}

// WriteArtifacts writes <dir>/<path>/<Name>.zbin (raw bytecode), optional
// .zasm/.ll/.nir dumps and a combined JSON of every artifact. It returns
// the written paths in order.
func WriteArtifacts(dir string, arts []*Artifact) ([]string, error) {
	var written []string
	combined := make(map[string]jsonArtifact, len(arts))
	for _, a := range arts {
		base, err := artifactBase(dir, a.Name)
		if err != nil {
			return written, err
		}
		if err := os.MkdirAll(filepath.Dir(base), 0o750); err != nil {
			return written, fmt.Errorf("failed to create output dir: %w", err)
		}
		files := []struct {
			ext  string
			data []byte
		}{
			{".zbin", a.Bytecode},
			{".zasm", []byte(a.Assembly)},
			{".ll", []byte(a.LLVM)},
			{".nir", []byte(a.Native)},
		}
		for _, f := range files {
			if len(f.data) == 0 {
				continue
			}
			p := base + f.ext
			if err := os.WriteFile(p, f.data, 0o600); err != nil {
				return written, fmt.Errorf("failed to write %q: %w", p, err)
			}
			written = append(written, p)
		}

		ja := jsonArtifact{
			Bytecode:            "0x" + hex.EncodeToString(a.Bytecode),
			CodeHash:            "0x" + hex.EncodeToString(a.CodeHash[:]),
			FactoryDependencies: a.FactoryDependencies,
			Assembly:            a.Assembly,
		}
		for _, p := range a.UnresolvedLibraries {
			ja.UnresolvedLibraries = append(ja.UnresolvedLibraries, jsonPlaceholder{Library: p.Library, Offsets: p.Offsets})
		}
		for _, w := range a.Warnings {
			ja.Warnings = append(ja.Warnings, w.Code.ID()+": "+w.Message)
		}
		combined[a.Name] = ja
	}

	// encoding/json сортирует ключи map, порядок детерминирован
	data, err := json.MarshalIndent(combined, "", "  ")
	if err != nil {
		return written, err
	}
	p := filepath.Join(dir, OutputFile)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return written, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(p, append(data, '\n'), 0o600); err != nil {
		return written, fmt.Errorf("failed to write %q: %w", p, err)
	}
	return append(written, p), nil
}

// artifactBase maps "path:Name" to dir/path/Name with the path made
// relative and free of "..".
func artifactBase(dir, name string) (string, error) {
	path, contract, err := project.SplitName(name)
	if err != nil {
		return "", err
	}
	path = filepath.ToSlash(filepath.Clean(path))
	path = strings.TrimLeft(path, "/")
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == ".." || part == "." || part == "" {
			continue
		}
		kept = append(kept, part)
	}
	return filepath.Join(append([]string{dir}, append(kept, contract)...)...), nil
}

// DisplayName shortens a unit name for the progress UI: a path under
// baseDir becomes relative.
func DisplayName(name, baseDir string) string {
	base := strings.TrimSpace(baseDir)
	if base == "" {
		return name
	}
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	path, contract, err := project.SplitName(name)
	if err != nil {
		return name
	}
	p := filepath.Clean(path)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if rel, err := filepath.Rel(base, p); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel) + ":" + contract
	}
	return name
}
