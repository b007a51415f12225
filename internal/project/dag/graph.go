package dag

import (
	"fmt"
	"slices"
	"strings"

	"zkvmc/internal/diag"
)

// Graph stores edges in resolution order: Edges[dep] lists the nodes that
// depend on dep, so a topological order visits dependencies first.
type Graph struct {
	Edges   [][]UnitID
	Indeg   []int  // входящие степени для Kahn (только присутствующие узлы)
	Present []bool // узел реально существует, а не только упомянут как зависимость
	Self    []bool // узел ссылается сам на себя
}

type Slot struct {
	Node    Node
	Present bool
	Missing []Dep // зависимости, которых нет среди узлов
}

func BuildGraph(idx Index, nodes []Node) (Graph, []Slot) {
	count := len(idx.IDToName)
	g := Graph{
		Edges:   make([][]UnitID, count),
		Indeg:   make([]int, count),
		Present: make([]bool, count),
		Self:    make([]bool, count),
	}
	slots := make([]Slot, count)
	for i, name := range idx.IDToName {
		slots[i].Node.Name = name
	}

	for _, node := range nodes {
		id, ok := idx.NameToID[node.Name]
		if !ok {
			continue
		}
		slot := &slots[int(id)]
		if slot.Present {
			if node.Reporter != nil {
				node.Reporter.Report(
					diag.LNKDuplicateUnit,
					diag.SevError,
					node.Span,
					fmt.Sprintf("duplicate unit %q", node.Name),
					[]diag.Note{{Span: slot.Node.Span, Msg: "previous declaration"}},
				)
			}
			continue
		}
		slot.Node = node
		slot.Present = true
		g.Present[int(id)] = true
	}

	for to := range slots {
		slot := &slots[to]
		if !slot.Present {
			continue
		}
		seen := make(map[UnitID]struct{}, len(slot.Node.Deps))
		for _, dep := range slot.Node.Deps {
			from, ok := idx.NameToID[dep.Name]
			if !ok {
				continue
			}
			if int(from) == to {
				g.Self[to] = true
				continue
			}
			if !g.Present[int(from)] {
				slot.Missing = append(slot.Missing, dep)
				continue
			}
			if _, dup := seen[from]; dup {
				continue
			}
			seen[from] = struct{}{}
			g.Edges[int(from)] = append(g.Edges[int(from)], UnitID(to)) // #nosec G115
			g.Indeg[to]++
		}
	}
	for i := range g.Edges {
		if len(g.Edges[i]) > 1 {
			slices.Sort(g.Edges[i])
		}
	}
	return g, slots
}

// Cycles returns the strongly connected components of present nodes that form
// cycles (size > 1 or a self reference), each sorted, in deterministic order.
func Cycles(g Graph) [][]UnitID {
	adj := make([][]int, len(g.Edges))
	for from, tos := range g.Edges {
		for _, to := range tos {
			adj[from] = append(adj[from], int(to))
		}
	}
	var out [][]UnitID
	for _, comp := range StronglyConnected(adj) {
		if len(comp) == 1 && !g.Self[comp[0]] {
			continue
		}
		if !g.Present[comp[0]] {
			continue
		}
		ids := make([]UnitID, len(comp))
		for i, c := range comp {
			ids[i] = UnitID(c) // #nosec G115
		}
		out = append(out, ids)
	}
	return out
}

// ReportCycles emits one error per member of every cycle, naming the whole cycle.
func ReportCycles(idx Index, slots []Slot, cycles [][]UnitID) {
	for _, cycle := range cycles {
		names := make([]string, 0, len(cycle)+1)
		for _, id := range cycle {
			names = append(names, idx.IDToName[int(id)])
		}
		names = append(names, names[0])
		summary := strings.Join(names, " -> ")
		for _, id := range cycle {
			slot := slots[int(id)]
			if !slot.Present || slot.Node.Reporter == nil {
				continue
			}
			msg := fmt.Sprintf("library %q participates in a dependency cycle: %s", slot.Node.Name, summary)
			slot.Node.Reporter.Report(diag.LNKLibraryCycle, diag.SevError, slot.Node.Span, msg, nil)
		}
	}
}
