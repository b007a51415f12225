package evmla

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
)

// Hash returns keccak256 of the canonical JSON of the assembly, as hex.
// Nested dependencies are embedded by value, so equal contracts hash equally.
func Hash(a *Assembly) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(crypto.Keccak256(data)), nil
}

// PreprocessDependencies maps every embedded dependency assembly to the full
// path of the unit with the same hash and rewrites the data entries and the
// PUSH [$] / PUSH #[$] operands of deploy and runtime code to that path.
// The runtime entry "0" of deploy code is kept.
func PreprocessDependencies(contracts map[string]*Assembly) error {
	paths := make([]string, 0, len(contracts))
	for p := range contracts {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	hashToPath := make(map[string]string, len(contracts))
	for _, p := range paths {
		h, err := Hash(contracts[p])
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if _, dup := hashToPath[h]; !dup {
			hashToPath[h] = p
		}
	}

	for _, p := range paths {
		deploy := contracts[p]
		if err := rewriteSegment(deploy, hashToPath, true); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if rt := deploy.Runtime(); rt != nil {
			if err := rewriteSegment(rt, hashToPath, false); err != nil {
				return fmt.Errorf("%s (runtime): %w", p, err)
			}
		}
	}
	return nil
}

func rewriteSegment(a *Assembly, hashToPath map[string]string, deploy bool) error {
	keyToPath := make(map[string]string)
	for _, key := range a.DataKeys() {
		e := a.Data[key]
		if deploy && key == RuntimeKey {
			continue
		}
		switch {
		case e.Path != "":
			keyToPath[NormalizeKey(key)] = e.Path
		case e.Assembly != nil:
			h, err := Hash(e.Assembly)
			if err != nil {
				return err
			}
			path, ok := hashToPath[h]
			if !ok {
				return fmt.Errorf("data entry %q does not match any contract", key)
			}
			keyToPath[NormalizeKey(key)] = path
			a.Data[key] = &DataEntry{Path: path}
		}
	}
	for i := range a.Code {
		in := &a.Code[i]
		if in.Name != NamePushData && in.Name != NamePushDataSize {
			continue
		}
		if path, ok := keyToPath[in.DataKey()]; ok {
			in.Value = path
		}
	}
	return nil
}
