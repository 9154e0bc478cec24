package monitor

import (
	"sync"
	"time"
)

// Timers is a mode-scoped set of latency series.
type Timers struct {
	mu   sync.Mutex
	mode string
	m    map[Key][]time.Duration
}

func NewTimers() *Timers {
	return &Timers{m: make(map[Key][]time.Duration)}
}

// Stopwatch measures one interval. The zero value is not running.
type Stopwatch struct {
	t     *Timers
	key   Key
	start time.Time
}

// Start begins timing label in the current mode. The mode is captured now,
// so a mode switch before Stop does not move the sample.
func (t *Timers) Start(label string) Stopwatch {
	t.mu.Lock()
	k := Key{Mode: t.mode, Label: label}
	t.mu.Unlock()
	return Stopwatch{t: t, key: k, start: time.Now()}
}

// Stop records the elapsed time and returns it.
func (s Stopwatch) Stop() time.Duration {
	if s.t == nil {
		return 0
	}
	d := time.Since(s.start)
	s.t.record(s.key, d)
	return d
}

// Record adds a sample to label in the current mode.
func (t *Timers) Record(label string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := Key{Mode: t.mode, Label: label}
	t.m[k] = append(t.m[k], d)
}

func (t *Timers) record(k Key, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[k] = append(t.m[k], d)
}

func (t *Timers) series(label string) []time.Duration {
	return t.m[Key{Mode: t.mode, Label: label}]
}

// Sum returns the total time recorded under label in the current mode.
func (t *Timers) Sum(label string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, d := range t.series(label) {
		total += d
	}
	return total
}

func (t *Timers) Count(label string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.series(label))
}

// Average returns the mean sample, or 0 when label has none.
func (t *Timers) Average(label string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.series(label)
	if len(s) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s {
		total += d
	}
	return total / time.Duration(len(s))
}

func (t *Timers) SetMode(mode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
}

func (t *Timers) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.m)
}

// Snapshot returns every series in milliseconds keyed by formatted Key.
func (t *Timers) Snapshot() map[string][]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]float64, len(t.m))
	for k, s := range t.m {
		ms := make([]float64, len(s))
		for i, d := range s {
			ms[i] = Millis(d)
		}
		out[k.String()] = ms
	}
	return out
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FastTimer keeps only a running sum and count.
type FastTimer struct {
	mu    sync.Mutex
	sum   time.Duration
	count int
}

// Time runs fn and adds its duration.
func (f *FastTimer) Time(fn func()) {
	start := time.Now()
	fn()
	f.Add(time.Since(start))
}

func (f *FastTimer) Add(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sum += d
	f.count++
}

// Average returns the mean duration, or 0 before the first sample.
func (f *FastTimer) Average() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count == 0 {
		return 0
	}
	return f.sum / time.Duration(f.count)
}

func (f *FastTimer) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *FastTimer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sum, f.count = 0, 0
}
