package dag

import (
	"slices"
)

type Topo struct {
	Order   []UnitID   // линейный порядок (только реальные узлы), зависимости первыми
	Batches [][]UnitID // волны независимых узлов
	Cyclic  bool
	Stuck   []UnitID // узлы, не попавшие в порядок (в цикле или за ним)
}

func ToposortKahn(g Graph) *Topo {
	count := len(g.Edges)
	indeg := make([]int, len(g.Indeg))
	copy(indeg, g.Indeg)

	topo := &Topo{Order: make([]UnitID, 0, count)}

	active := 0
	current := make([]UnitID, 0, count)
	for i := range count {
		if !g.Present[i] {
			continue
		}
		active++
		if indeg[i] == 0 && !g.Self[i] {
			current = append(current, UnitID(i)) // #nosec G115
		}
	}

	for len(current) > 0 {
		batch := slices.Clone(current)
		topo.Batches = append(topo.Batches, batch)

		var next []UnitID
		for _, id := range batch {
			topo.Order = append(topo.Order, id)
			for _, to := range g.Edges[int(id)] {
				indeg[int(to)]--
				if indeg[int(to)] == 0 && !g.Self[int(to)] {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if len(topo.Order) != active {
		topo.Cyclic = true
		done := make([]bool, count)
		for _, id := range topo.Order {
			done[int(id)] = true
		}
		for i := range count {
			if g.Present[i] && !done[i] {
				topo.Stuck = append(topo.Stuck, UnitID(i)) // #nosec G115
			}
		}
	}
	return topo
}
