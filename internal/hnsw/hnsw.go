package hnsw

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/vectier/internal/queue"
)

type node struct {
	level int
	links [][]uint32
}

// Graph is an HNSW topology over externally stored vectors. Insert and Reset
// take the write lock; Search takes the read lock.
type Graph struct {
	mu sync.RWMutex

	opts  Options
	mmax  int
	mmax0 int
	ml    float64
	rng   *rand.Rand

	nodes    map[uint32]*node
	maxID    uint32
	entry    uint32
	hasEntry bool
	maxLevel int
}

// New creates an empty graph.
func New(optFns ...func(o *Options)) *Graph {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.M < 2 {
		// M == 1 would make the level normalization 1/log(1) infinite.
		opts.M = 2
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}
	if opts.Distance == nil {
		opts.Distance = DefaultOptions.Distance
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Graph{
		opts:  opts,
		mmax:  opts.M,
		mmax0: 2 * opts.M,
		ml:    1 / math.Log(float64(opts.M)),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		nodes: make(map[uint32]*node),
	}
}

func (g *Graph) randomLevel() int {
	return int(math.Floor(-math.Log(1-g.rng.Float64()) * g.ml))
}

func (g *Graph) maxConnections(level int) int {
	if level == 0 {
		return g.mmax0
	}
	return g.mmax
}

// Insert links id with vector v. vec resolves the vectors of existing nodes.
func (g *Graph) Insert(ctx context.Context, id uint32, v []float32, vec VectorFunc) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; ok {
		return &ErrDuplicateID{ID: id}
	}

	level := g.randomLevel()
	n := &node{level: level, links: make([][]uint32, level+1)}
	g.maxID = max(g.maxID, id)

	if !g.hasEntry {
		g.nodes[id] = n
		g.entry, g.hasEntry, g.maxLevel = id, true, level
		return nil
	}

	get := func(ctx context.Context, x uint32) ([]float32, error) {
		if x == id {
			return v, nil
		}
		return vec(ctx, x)
	}

	epVec, err := get(ctx, g.entry)
	if err != nil {
		return err
	}
	ep := queue.Item{ID: g.entry, Distance: g.opts.Distance(v, epVec)}

	for l := g.maxLevel; l > level; l-- {
		if ep, err = g.greedy(ctx, v, ep, l, get); err != nil {
			return err
		}
	}

	for l := min(level, g.maxLevel); l >= 0; l-- {
		found, err := g.searchLayer(ctx, v, ep, g.opts.EFConstruction, l, get)
		if err != nil {
			return err
		}
		selected, err := g.selectNeighbors(ctx, found, g.opts.M, get)
		if err != nil {
			return err
		}
		n.links[l] = make([]uint32, len(selected))
		for i, it := range selected {
			n.links[l][i] = it.ID
		}
		ep = found[0]
	}

	g.nodes[id] = n
	for l := min(level, g.maxLevel); l >= 0; l-- {
		for _, nb := range n.links[l] {
			if err := g.link(ctx, nb, id, l, get); err != nil {
				return err
			}
		}
	}

	if level > g.maxLevel {
		g.entry, g.maxLevel = id, level
	}
	return nil
}

// link adds to -> from on level and prunes from's list when it overflows.
func (g *Graph) link(ctx context.Context, from, to uint32, level int, get VectorFunc) error {
	n := g.nodes[from]
	if level >= len(n.links) {
		return nil
	}
	n.links[level] = append(n.links[level], to)
	limit := g.maxConnections(level)
	if len(n.links[level]) <= limit {
		return nil
	}

	base, err := get(ctx, from)
	if err != nil {
		return err
	}
	cands := make([]queue.Item, 0, len(n.links[level]))
	for _, x := range n.links[level] {
		xv, err := get(ctx, x)
		if err != nil {
			return err
		}
		cands = append(cands, queue.Item{ID: x, Distance: g.opts.Distance(base, xv)})
	}
	slices.SortFunc(cands, func(a, b queue.Item) int { return cmp.Compare(a.Distance, b.Distance) })

	selected, err := g.selectNeighbors(ctx, cands, limit, get)
	if err != nil {
		return err
	}
	n.links[level] = n.links[level][:0]
	for _, it := range selected {
		n.links[level] = append(n.links[level], it.ID)
	}
	return nil
}

// greedy walks level toward q until no neighbor is closer.
func (g *Graph) greedy(ctx context.Context, q []float32, ep queue.Item, level int, get VectorFunc) (queue.Item, error) {
	for changed := true; changed; {
		changed = false
		n := g.nodes[ep.ID]
		if level >= len(n.links) {
			return ep, nil
		}
		for _, x := range n.links[level] {
			xv, err := get(ctx, x)
			if err != nil {
				return ep, err
			}
			if d := g.opts.Distance(q, xv); d < ep.Distance {
				ep = queue.Item{ID: x, Distance: d}
				changed = true
			}
		}
	}
	return ep, nil
}

// searchLayer returns up to ef nodes closest to q on level, nearest first.
func (g *Graph) searchLayer(ctx context.Context, q []float32, ep queue.Item, ef, level int, get VectorFunc) ([]queue.Item, error) {
	visited := bitset.New(uint(g.maxID) + 1)
	visited.Set(uint(ep.ID))

	candidates := queue.NewMin(ef)
	results := queue.NewMax(ef + 1)
	candidates.Push(ep)
	results.Push(ep)

	for candidates.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, _ := candidates.Pop()
		worst, _ := results.Top()
		if c.Distance > worst.Distance {
			break
		}

		n := g.nodes[c.ID]
		if level >= len(n.links) {
			continue
		}
		for _, x := range n.links[level] {
			if visited.Test(uint(x)) {
				continue
			}
			visited.Set(uint(x))

			xv, err := get(ctx, x)
			if err != nil {
				return nil, err
			}
			d := g.opts.Distance(q, xv)
			worst, _ = results.Top()
			if results.Len() < ef || d < worst.Distance {
				it := queue.Item{ID: x, Distance: d}
				candidates.Push(it)
				results.Push(it)
				if results.Len() > ef {
					results.Pop()
				}
			}
		}
	}

	out := results.Drain()
	slices.Reverse(out)
	return out, nil
}

// selectNeighbors picks m of the sorted candidates. The heuristic keeps a
// candidate only if it is closer to the base than to every kept neighbor,
// then tops up with the pruned ones.
func (g *Graph) selectNeighbors(ctx context.Context, cands []queue.Item, m int, get VectorFunc) ([]queue.Item, error) {
	if len(cands) <= m || !g.opts.Heuristic {
		return cands[:min(m, len(cands))], nil
	}

	kept := make([]queue.Item, 0, m)
	keptVecs := make([][]float32, 0, m)
	var pruned []queue.Item
	for _, c := range cands {
		if len(kept) >= m {
			break
		}
		cv, err := get(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		good := true
		for _, kv := range keptVecs {
			if g.opts.Distance(cv, kv) < c.Distance {
				good = false
				break
			}
		}
		if good {
			kept = append(kept, c)
			keptVecs = append(keptVecs, cv)
		} else {
			pruned = append(pruned, c)
		}
	}
	for _, p := range pruned {
		if len(kept) >= m {
			break
		}
		kept = append(kept, p)
	}
	return kept, nil
}

// Search returns the k nearest nodes to q, nearest first. ef below k is
// raised to k.
func (g *Graph) Search(ctx context.Context, q []float32, k, ef int, vec VectorFunc) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(q) == 0 {
		return nil, ErrEmptyVector
	}
	ef = max(ef, k)

	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil, nil
	}

	epVec, err := vec(ctx, g.entry)
	if err != nil {
		return nil, err
	}
	ep := queue.Item{ID: g.entry, Distance: g.opts.Distance(q, epVec)}
	for l := g.maxLevel; l > 0; l-- {
		if ep, err = g.greedy(ctx, q, ep, l, vec); err != nil {
			return nil, err
		}
	}

	found, err := g.searchLayer(ctx, q, ep, ef, 0, vec)
	if err != nil {
		return nil, err
	}
	found = found[:min(k, len(found))]
	out := make([]SearchResult, len(found))
	for i, it := range found {
		out[i] = SearchResult{ID: it.ID, Distance: it.Distance}
	}
	return out, nil
}

// Len returns the number of linked nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Contains reports whether id is linked.
func (g *Graph) Contains(id uint32) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// EntryPoint returns the node searches start from.
func (g *Graph) EntryPoint() (uint32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entry, g.hasEntry
}

// Level returns the top layer of id.
func (g *Graph) Level(id uint32) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return 0, false
	}
	return n.level, true
}

// MaxID returns the highest node id ever inserted or imported.
func (g *Graph) MaxID() (uint32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.maxID, g.hasEntry
}

// Neighbors returns a copy of id's links on level.
func (g *Graph) Neighbors(id uint32, level int) []uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok || level >= len(n.links) {
		return nil
	}
	return slices.Clone(n.links[level])
}

// UpperLayerIDs returns the entry point followed by every other node whose
// top layer is at least 1, ordered by layer descending then id. These are
// the nodes every search passes through first.
func (g *Graph) UpperLayerIDs() []uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.hasEntry {
		return nil
	}

	upper := make([]uint32, 0)
	for id, n := range g.nodes {
		if id != g.entry && n.level >= 1 {
			upper = append(upper, id)
		}
	}
	slices.SortFunc(upper, func(a, b uint32) int {
		if c := cmp.Compare(g.nodes[b].level, g.nodes[a].level); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return append([]uint32{g.entry}, upper...)
}

// Reset removes every node.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.nodes)
	g.maxID, g.entry, g.hasEntry, g.maxLevel = 0, 0, false, 0
}
