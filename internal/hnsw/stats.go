package hnsw

import "strconv"

// Stats returns per-layer node and link counts.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	levels := make([]LevelStats, g.maxLevel+1)
	for i := range levels {
		levels[i].Level = i
	}
	for _, n := range g.nodes {
		for l := 0; l <= n.level && l < len(levels); l++ {
			levels[l].Nodes++
			levels[l].Connections += len(n.links[l])
		}
	}
	for i := range levels {
		if levels[i].Nodes > 0 {
			levels[i].AvgConnections = levels[i].Connections / levels[i].Nodes
		}
	}

	return Stats{
		Nodes:      len(g.nodes),
		MaxLevel:   g.maxLevel,
		EntryPoint: g.entry,
		Parameters: map[string]string{
			"M":              strconv.Itoa(g.mmax),
			"M0":             strconv.Itoa(g.mmax0),
			"EFConstruction": strconv.Itoa(g.opts.EFConstruction),
			"Heuristic":      strconv.FormatBool(g.opts.Heuristic),
		},
		Levels: levels,
	}
}
