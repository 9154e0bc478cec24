package hnsw

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vectier/distance"
)

var (
	ErrEmptyVector = errors.New("vector cannot be empty")
	ErrInvalidK    = errors.New("k must be positive")
)

// ErrDuplicateID is returned when inserting an id that is already linked.
type ErrDuplicateID struct {
	ID uint32
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("node %d already in graph", e.ID)
}

// VectorFunc resolves the vector of a node.
type VectorFunc func(ctx context.Context, id uint32) ([]float32, error)

// Options configures a Graph.
type Options struct {
	// M is the number of links created per node on each layer.
	M int
	// EFConstruction is the candidate list size used while linking.
	EFConstruction int
	// Heuristic enables the diversity-preserving neighbor selection.
	Heuristic bool
	// Distance defaults to squared L2.
	Distance distance.Func
	// Seed fixes level generation; zero picks a random seed.
	Seed uint64
}

var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	Heuristic:      true,
	Distance:       distance.SquaredL2,
}

// SearchResult is one neighbor of a query.
type SearchResult struct {
	ID       uint32
	Distance float32
}

type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections int
}

type Stats struct {
	Nodes      int
	MaxLevel   int
	EntryPoint uint32
	Parameters map[string]string
	Levels     []LevelStats
}
