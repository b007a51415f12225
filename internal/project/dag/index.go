package dag

import (
	"sort"

	"zkvmc/internal/diag"
	"zkvmc/internal/source"
)

type UnitID uint32

// Dep is a "must be resolved before" reference from one node to another.
type Dep struct {
	Name string
	Span source.Span
}

// Node is one unit of the graph: a compilation unit, a library, a dependency.
type Node struct {
	Name     string
	Span     source.Span
	Deps     []Dep
	Reporter diag.Reporter
}

type Index struct {
	NameToID map[string]UnitID
	IDToName []string
}

// BuildIndex собирает уникальные имена узлов и их зависимостей, сортирует и раздаёт ID по порядку.
func BuildIndex(nodes []Node) Index {
	uniq := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.Name != "" {
			uniq[n.Name] = struct{}{}
		}
		for _, dep := range n.Deps {
			if dep.Name != "" {
				uniq[dep.Name] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(uniq))
	for name := range uniq {
		names = append(names, name)
	}
	sort.Strings(names)

	nameToID := make(map[string]UnitID, len(names))
	for i, name := range names {
		nameToID[name] = UnitID(i) // #nosec G115 -- bounded by len(names)
	}
	return Index{NameToID: nameToID, IDToName: names}
}
