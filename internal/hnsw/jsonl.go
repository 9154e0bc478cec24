package hnsw

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

// ErrMalformedIndex is returned by Import for input that is not a graph dump.
var ErrMalformedIndex = errors.New("hnsw: malformed index")

// header is the first line of a JSONL graph dump.
type header struct {
	Distance       string  `json:"distanceFunctionType"`
	EntryPoint     uint32  `json:"entryPointKey"`
	EFConstruction int     `json:"efConstruction"`
	M              int     `json:"m"`
	MMax0          int     `json:"mMax0"`
	ML             float64 `json:"ml"`
	Seed           uint64  `json:"seed"`
}

// line is any of the following lines: a layer marker, a node key or a link.
type line struct {
	GraphLayer *int     `json:"graphlayer,omitempty"`
	Key        *uint32  `json:"key,omitempty"`
	NKey       *uint32  `json:"nkey,omitempty"`
	Distance   *float32 `json:"distance,omitempty"`
}

// Export writes the graph as JSON lines: a header, then for each layer a
// marker followed by every node key and its links. Link distances are
// computed through vec. distanceName is recorded in the header.
func (g *Graph) Export(ctx context.Context, w io.Writer, distanceName string, vec VectorFunc) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	if err := enc.Encode(header{
		Distance:       distanceName,
		EntryPoint:     g.entry,
		EFConstruction: g.opts.EFConstruction,
		M:              g.opts.M,
		MMax0:          g.mmax0,
		ML:             g.ml,
		Seed:           g.opts.Seed,
	}); err != nil {
		return err
	}
	if !g.hasEntry {
		return bw.Flush()
	}

	ids := make([]uint32, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for l := 0; l <= g.maxLevel; l++ {
		if err := enc.Encode(line{GraphLayer: &l}); err != nil {
			return err
		}
		for _, id := range ids {
			n := g.nodes[id]
			if n.level < l {
				continue
			}
			if err := enc.Encode(line{Key: &id}); err != nil {
				return err
			}
			if len(n.links[l]) == 0 {
				continue
			}
			v, err := vec(ctx, id)
			if err != nil {
				return fmt.Errorf("hnsw: export node %d: %w", id, err)
			}
			for _, nb := range n.links[l] {
				nv, err := vec(ctx, nb)
				if err != nil {
					return fmt.Errorf("hnsw: export node %d: %w", nb, err)
				}
				d := g.opts.Distance(v, nv)
				if err := enc.Encode(line{NKey: &nb, Distance: &d}); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// Import replaces the topology with a dump written by Export. Vectors are
// not part of the dump; the caller must make them resolvable. The header
// restores M and efConstruction. It returns the name of the distance the
// dump was built with.
func (g *Graph) Import(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var (
		h       header
		hasHead bool
		nodes   = make(map[uint32]*node)
		layer   = -1
		cur     *node
		curID   uint32
	)

	for lineNo := 1; sc.Scan(); lineNo++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		if !hasHead {
			if err := json.Unmarshal(raw, &h); err != nil {
				return "", fmt.Errorf("%w: line %d: %w", ErrMalformedIndex, lineNo, err)
			}
			hasHead = true
			continue
		}

		var ln line
		if err := json.Unmarshal(raw, &ln); err != nil {
			return "", fmt.Errorf("%w: line %d: %w", ErrMalformedIndex, lineNo, err)
		}
		switch {
		case ln.GraphLayer != nil:
			if *ln.GraphLayer != layer+1 {
				return "", fmt.Errorf("%w: line %d: layer %d out of order", ErrMalformedIndex, lineNo, *ln.GraphLayer)
			}
			layer, cur = *ln.GraphLayer, nil
		case ln.Key != nil:
			if layer < 0 {
				return "", fmt.Errorf("%w: line %d: key before first layer", ErrMalformedIndex, lineNo)
			}
			curID = *ln.Key
			n, ok := nodes[curID]
			if !ok {
				if layer > 0 {
					return "", fmt.Errorf("%w: line %d: node %d missing from lower layers", ErrMalformedIndex, lineNo, curID)
				}
				n = &node{}
				nodes[curID] = n
			} else if n.level != layer-1 {
				return "", fmt.Errorf("%w: line %d: node %d repeated or skips a layer", ErrMalformedIndex, lineNo, curID)
			}
			n.level = layer
			n.links = append(n.links, nil)
			cur = n
		case ln.NKey != nil:
			if cur == nil {
				return "", fmt.Errorf("%w: line %d: link without key", ErrMalformedIndex, lineNo)
			}
			cur.links[layer] = append(cur.links[layer], *ln.NKey)
		default:
			return "", fmt.Errorf("%w: line %d: unknown entry", ErrMalformedIndex, lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if !hasHead {
		return "", fmt.Errorf("%w: empty input", ErrMalformedIndex)
	}
	if len(nodes) > 0 {
		ep, ok := nodes[h.EntryPoint]
		if !ok {
			return "", fmt.Errorf("%w: entry point %d not in graph", ErrMalformedIndex, h.EntryPoint)
		}
		if ep.level != layer {
			return "", fmt.Errorf("%w: entry point %d not on top layer", ErrMalformedIndex, h.EntryPoint)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if h.M >= 2 {
		g.opts.M = h.M
		g.mmax = h.M
		g.mmax0 = 2 * h.M
		g.ml = 1 / math.Log(float64(h.M))
	}
	if h.MMax0 > 0 {
		g.mmax0 = h.MMax0
	}
	if h.EFConstruction > 0 {
		g.opts.EFConstruction = max(h.EFConstruction, g.opts.M)
	}

	g.nodes = nodes
	g.maxID = 0
	for id := range nodes {
		g.maxID = max(g.maxID, id)
	}
	g.hasEntry = len(nodes) > 0
	g.entry = 0
	g.maxLevel = 0
	if g.hasEntry {
		g.entry, g.maxLevel = h.EntryPoint, layer
	}
	return h.Distance, nil
}
