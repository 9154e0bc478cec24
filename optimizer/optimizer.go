package optimizer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/indextier"
	"github.com/hupe1980/vectier/monitor"
	"github.com/hupe1980/vectier/valuestore"
)

// FastTier is what the optimizer needs from the value access layer.
type FastTier interface {
	Cache() cache.VectorCache
	// HitCount returns fast tier hits in the current mode.
	HitCount() int
	ClearMonitor()
}

// Options configures an Optimizer.
type Options struct {
	// QueryK and QueryEF parameterize the representative query. A negative
	// ef selects the index default.
	QueryK  int
	QueryEF int
	// Probes is the number of direct store reads averaged for t_db.
	Probes int
	// MinStoreMillis floors t_db.
	MinStoreMillis float64
	// Slack bounds the query time at Slack*target/fraction.
	Slack float64
	// MaxRounds caps Optimize iterations.
	MaxRounds int

	Logger  *slog.Logger
	Metrics Metrics
	Rand    *rand.Rand
}

var DefaultOptions = Options{
	QueryK:         10,
	QueryEF:        -1,
	Probes:         10,
	MinStoreMillis: 1.0,
	Slack:          1.5,
	MaxRounds:      64,
}

// Optimizer partitions capacity between a fast tier and an index tier.
type Optimizer struct {
	mu sync.Mutex

	fast  FastTier
	index indextier.Adapter
	store valuestore.Store
	opts  Options

	logger  *slog.Logger
	metrics Metrics
	rng     *rand.Rand

	records []Record
}

// New creates an optimizer over the given tiers.
func New(fast FastTier, index indextier.Adapter, store valuestore.Store, optFns ...func(o *Options)) *Optimizer {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	o := &Optimizer{
		fast:    fast,
		index:   index,
		store:   store,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		rng:     opts.Rand,
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

// Check applies sizes and measures them against the target: a fraction of
// queries within targetMillis.
func (o *Optimizer) Check(ctx context.Context, sizeFast, sizeIndex int, targetFraction, targetMillis float64) (Outcome, error) {
	if !o.mu.TryLock() {
		return Outcome{}, ErrBusy
	}
	defer o.mu.Unlock()
	return o.check(ctx, o.logger, Sizes{Fast: sizeFast, Index: sizeIndex}, targetFraction, targetMillis)
}

func (o *Optimizer) apply(s Sizes) {
	o.fast.Cache().SetItemsThreshold(s.Fast)
	o.index.SetItemsThreshold(s.Index)
}

func (o *Optimizer) clearTelemetry() {
	o.fast.ClearMonitor()
	o.index.ClearMonitor()
}

func (o *Optimizer) check(ctx context.Context, logger *slog.Logger, s Sizes, p, target float64) (Outcome, error) {
	out := Outcome{Sizes: s}
	reject := func(reason string) (Outcome, error) {
		out.Reason = reason
		logger.Info("configuration rejected", "fast", s.Fast, "index", s.Index, "reason", reason,
			"num_db", out.NumDB, "theta", out.Theta)
		o.metrics.RecordCheck(false, out.NumDB, out.Theta)
		return out, nil
	}

	if s.Index < 1 {
		return reject(ReasonIndexTooSmall)
	}
	dim := o.fast.Cache().EmbedSize()
	if dim <= 0 {
		return reject(ReasonNoEmbedSize)
	}

	o.apply(s)
	o.clearTelemetry()

	q := make([]float32, dim)
	for i := range q {
		q[i] = o.rng.Float32()
	}
	start := time.Now()
	res := indextier.QuerySync(ctx, o.index, q, o.opts.QueryK, o.opts.QueryEF)
	out.QueryMillis = monitor.Millis(time.Since(start))
	if res.Err != nil {
		return out, fmt.Errorf("optimizer: representative query: %w", res.Err)
	}

	hits, fallbacks, err := indextier.ParseCounterString(o.index.CounterString())
	if err != nil {
		return out, err
	}
	fastHits := o.fast.HitCount()
	out.NumDB = fallbacks - fastHits
	out.NumQuery = hits + out.NumDB + fastHits

	var probe monitor.FastTimer
	for range o.opts.Probes {
		id, ok, err := o.store.RandomID(ctx)
		if err != nil {
			return out, fmt.Errorf("optimizer: store probe: %w", err)
		}
		if !ok {
			return reject(ReasonStoreEmpty)
		}
		var getErr error
		probe.Time(func() { _, getErr = o.store.Get(ctx, id) })
		if getErr != nil {
			return out, fmt.Errorf("optimizer: store probe: %w", getErr)
		}
	}
	out.StoreMillis = max(monitor.Millis(probe.Average()), o.opts.MinStoreMillis)
	out.Theta = math.Max(p*out.QueryMillis/out.StoreMillis, target/out.StoreMillis)

	if out.QueryMillis > o.opts.Slack*(target/p) {
		return reject(ReasonQueryTooSlow)
	}
	if float64(out.NumDB) > out.Theta {
		return reject(ReasonTooManyReads)
	}

	out.Accepted = true
	logger.Info("configuration accepted", "fast", s.Fast, "index", s.Index,
		"num_query", out.NumQuery, "num_db", out.NumDB, "theta", out.Theta,
		"query_ms", out.QueryMillis, "store_ms", out.StoreMillis)
	o.metrics.RecordCheck(true, out.NumDB, out.Theta)
	return out, nil
}

// Optimize shrinks the tiers from their current resident sizes until a
// configuration is rejected, then applies the smallest accepted one. When
// nothing is accepted the current sizes are applied. An accepted
// configuration is only recorded when it is smaller than the newest record.
func (o *Optimizer) Optimize(ctx context.Context, targetFraction, targetMillis float64) (Sizes, error) {
	if !o.mu.TryLock() {
		return Sizes{}, ErrBusy
	}
	defer o.mu.Unlock()

	runID := uuid.NewString()
	logger := o.logger.With("run", runID)
	start := time.Now()

	cur := Sizes{Fast: o.fast.Cache().Len(), Index: o.index.CacheSize()}
	best := cur
	rounds := 0
	logger.Info("optimization started", "fast", cur.Fast, "index", cur.Index,
		"target_fraction", targetFraction, "target_ms", targetMillis)

	var runErr error
	for cur.Total() > 0 && rounds < o.opts.MaxRounds {
		rounds++
		out, err := o.check(ctx, logger, cur, targetFraction, targetMillis)
		if err != nil {
			runErr = err
			break
		}
		if !out.Accepted {
			break
		}
		// the stack stays strictly decreasing in combined size
		if n := len(o.records); n == 0 || cur.Total() < o.records[n-1].Total() {
			o.records = append(o.records, Record{Sizes: cur, Theta: out.Theta, RunID: runID, At: time.Now()})
		}
		best = cur

		next := PredictSmaller(out.NumQuery, out.NumDB, cur.Fast, cur.Index, out.Theta)
		if next.Total() <= 0 || next.Total() >= best.Total() {
			break
		}
		cur = next
	}

	o.apply(best)
	o.clearTelemetry()

	d := time.Since(start)
	o.metrics.RecordOptimize(best, rounds, d)
	logger.Info("optimization finished", "fast", best.Fast, "index", best.Index,
		"rounds", rounds, "records", len(o.records), "duration", d)
	return best, runErr
}

// ObserveQuery compares the store reads of the last live query with the
// tolerance of the newest record. When exceeded the record is dropped and
// the previous larger configuration restored.
func (o *Optimizer) ObserveQuery() (bool, error) {
	if !o.mu.TryLock() {
		return false, ErrBusy
	}
	defer o.mu.Unlock()

	if len(o.records) == 0 {
		return false, nil
	}
	_, fallbacks, err := indextier.ParseCounterString(o.index.CounterString())
	if err != nil {
		return false, err
	}
	numDB := fallbacks - o.fast.HitCount()

	top := o.records[len(o.records)-1]
	if float64(numDB) <= top.Theta {
		return false, nil
	}

	o.records = o.records[:len(o.records)-1]
	restore := top.Sizes
	if n := len(o.records); n > 0 {
		restore = o.records[n-1].Sizes
	}
	o.apply(restore)

	o.logger.Warn("configuration rolled back", "num_db", numDB, "theta", top.Theta,
		"fast", restore.Fast, "index", restore.Index, "records", len(o.records))
	o.metrics.RecordRollback(restore)
	return true, nil
}

// Records returns the accepted configurations, oldest first.
func (o *Optimizer) Records() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.records)
}

// Reset forgets every record.
func (o *Optimizer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = nil
}
