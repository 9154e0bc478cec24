package optimizer

import (
	"errors"
	"time"
)

// ErrBusy is returned when Check, Optimize or ObserveQuery is entered while
// another one is running.
var ErrBusy = errors.New("optimizer: busy")

// Sizes is a pair of tier capacities in items.
type Sizes struct {
	Fast  int `json:"fast"`
	Index int `json:"index"`
}

// Total is the combined capacity.
func (s Sizes) Total() int { return s.Fast + s.Index }

// IsZero reports the "no candidate" result of PredictSmaller.
func (s Sizes) IsZero() bool { return s.Fast == 0 && s.Index == 0 }

// Record is an accepted configuration and the num_db it tolerates.
type Record struct {
	Sizes
	Theta float64   `json:"theta"`
	RunID string    `json:"run_id"`
	At    time.Time `json:"at"`
}

// Outcome is the result of one Check. A rejected outcome is not an error.
type Outcome struct {
	Accepted bool `json:"accepted"`
	Sizes
	NumQuery    int     `json:"num_query"`
	NumDB       int     `json:"num_db"`
	Theta       float64 `json:"theta"`
	QueryMillis float64 `json:"query_ms"`
	StoreMillis float64 `json:"store_ms"`
	Reason      string  `json:"reason,omitempty"`
}

// Rejection reasons.
const (
	ReasonIndexTooSmall = "index tier size below 1"
	ReasonNoEmbedSize   = "embed size unknown"
	ReasonStoreEmpty    = "store has no vectors"
	ReasonQueryTooSlow  = "query time above slack bound"
	ReasonTooManyReads  = "store reads above theta"
)

// Metrics receives optimizer events.
type Metrics interface {
	RecordCheck(accepted bool, numDB int, theta float64)
	RecordOptimize(sizes Sizes, rounds int, d time.Duration)
	RecordRollback(restored Sizes)
}

type noopMetrics struct{}

func (noopMetrics) RecordCheck(bool, int, float64)           {}
func (noopMetrics) RecordOptimize(Sizes, int, time.Duration) {}
func (noopMetrics) RecordRollback(Sizes)                     {}
