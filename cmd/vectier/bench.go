package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hupe1980/vectier"
	"github.com/hupe1980/vectier/config"
	"github.com/hupe1980/vectier/metrics/prometheus"
	"github.com/hupe1980/vectier/optimizer"
	"github.com/hupe1980/vectier/testutil"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type benchFlags struct {
	items       int
	dim         int
	k           int
	clusters    int
	zipf        float64
	seed        uint64
	optimize    bool
	metricsAddr string
	exportPath  string
}

// benchReport is printed as JSON when the run finishes.
type benchReport struct {
	Items        int                       `json:"items"`
	Dimension    int                       `json:"dimension"`
	Queries      int                       `json:"queries"`
	LoadTime     string                    `json:"load_time"`
	QueryAvg     string                    `json:"query_avg"`
	QueryAvgOpt  string                    `json:"query_avg_optimized,omitempty"`
	Sizes        optimizer.Sizes           `json:"sizes"`
	Records      []optimizer.Record        `json:"records"`
	Memory       string                    `json:"memory"`
	Metrics      vectier.BasicMetricsStats `json:"metrics"`
	IndexWritten string                    `json:"index_written,omitempty"`
}

func newBenchCmd(load func() (config.Config, error)) *cobra.Command {
	var f benchFlags

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load random vectors, replay a skewed query workload and optionally optimize tier sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg, f)
		},
	}

	fl := cmd.Flags()
	addDataFlags(fl, &f)
	fl.IntVarP(&f.k, "k", "k", 10, "neighbors per query")
	fl.Float64Var(&f.zipf, "zipf", 1.1, "zipf exponent of the query workload")
	fl.BoolVar(&f.optimize, "optimize", false, "optimize tier sizes after the first round")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	fl.StringVar(&f.exportPath, "export-index", "", "write the graph as JSONL to this file")
	return cmd
}

func runBench(ctx context.Context, out io.Writer, cfg config.Config, f benchFlags) error {
	if f.items <= 0 || f.dim <= 0 || f.k <= 0 {
		return errors.New("items, dim and k must be positive")
	}
	if f.zipf <= 1 {
		return fmt.Errorf("zipf exponent must be greater than 1, got %v", f.zipf)
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := vectier.NewTextLogger(level)

	basic := &vectier.BasicMetricsCollector{}
	var collector vectier.MetricsCollector = basic
	if f.metricsAddr != "" {
		reg := prom.NewRegistry()
		pc, err := prometheus.New(func(o *prometheus.Options) { o.Registerer = reg })
		if err != nil {
			return err
		}
		collector = teeCollector{basic, pc}

		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	start := time.Now()
	e, vecs, err := openLoaded(ctx, cfg, f, logger, vectier.WithMetricsCollector(collector))
	if err != nil {
		return err
	}
	defer func() { _ = e.Close(context.WithoutCancel(ctx)) }()

	rng := testutil.NewRNG(f.seed + 1)
	report := benchReport{
		Items:     e.Len(),
		Dimension: f.dim,
		LoadTime:  time.Since(start).Round(time.Millisecond).String(),
	}

	workload := rng.ZipfIDs(cfg.Repeat, len(vecs), f.zipf)
	e.SetMonitorMode("bench")
	avg, err := replay(ctx, e, vecs, workload, f.k)
	if err != nil {
		return err
	}
	report.Queries = len(workload)
	report.QueryAvg = avg.String()

	if f.optimize {
		if _, err := e.Optimize(ctx, cfg.TargetFraction, cfg.TargetMillis); err != nil {
			return err
		}
		e.ClearMonitor()
		avg, err := replay(ctx, e, vecs, workload, f.k)
		if err != nil {
			return err
		}
		report.Queries += len(workload)
		report.QueryAvgOpt = avg.String()
	}

	if f.exportPath != "" {
		n, err := exportIndex(ctx, e, f.exportPath)
		if err != nil {
			return err
		}
		report.IndexWritten = humanize.IBytes(uint64(n))
	}

	st := e.Stats()
	report.Sizes = e.Sizes()
	report.Records = st.Records
	report.Memory = humanize.IBytes(uint64(st.MemoryBytes))
	report.Metrics = basic.GetStats()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// openLoaded builds an engine from cfg and inserts f.items generated vectors.
func openLoaded(ctx context.Context, cfg config.Config, f benchFlags, logger *vectier.Logger, opts ...vectier.Option) (*vectier.Engine, [][]float32, error) {
	e, err := cfg.NewEngine(ctx, logger, opts...)
	if err != nil {
		return nil, nil, err
	}

	rng := testutil.NewRNG(f.seed)
	var vecs [][]float32
	if f.clusters > 0 {
		vecs = rng.ClusteredVectors(f.items, f.dim, f.clusters, 0.05)
	} else {
		vecs = rng.UniformVectors(f.items, f.dim)
	}
	for i, v := range vecs {
		if _, err := e.Insert(ctx, fmt.Sprintf("vec-%d", i), v); err != nil {
			_ = e.Close(ctx)
			return nil, nil, err
		}
	}
	return e, vecs, nil
}

func addDataFlags(fl *pflag.FlagSet, f *benchFlags) {
	fl.IntVarP(&f.items, "items", "n", 2000, "number of vectors to load")
	fl.IntVarP(&f.dim, "dim", "d", 64, "vector dimension")
	fl.IntVar(&f.clusters, "clusters", 16, "number of vector clusters, 0 for uniform data")
	fl.Uint64Var(&f.seed, "seed", 1, "random seed")
}

func replay(ctx context.Context, e *vectier.Engine, vecs [][]float32, ids []uint32, k int) (time.Duration, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	start := time.Now()
	for _, id := range ids {
		if _, err := e.Query(ctx, vecs[id], k); err != nil {
			return 0, err
		}
	}
	return time.Since(start) / time.Duration(len(ids)), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func exportIndex(ctx context.Context, e *vectier.Engine, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: f}
	if err := e.ExportIndex(ctx, cw); err != nil {
		_ = f.Close()
		return 0, err
	}
	return cw.n, f.Close()
}
