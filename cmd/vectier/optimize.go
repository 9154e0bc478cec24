package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/vectier"
	"github.com/hupe1980/vectier/config"
	"github.com/hupe1980/vectier/optimizer"
	"github.com/spf13/cobra"
)

type optimizeReport struct {
	Before  optimizer.Sizes    `json:"before"`
	After   optimizer.Sizes    `json:"after"`
	Records []optimizer.Record `json:"records"`
	Outcome *optimizer.Outcome `json:"outcome,omitempty"`
}

func newOptimizeCmd(load func() (config.Config, error)) *cobra.Command {
	var (
		f        benchFlags
		fraction float64
		millis   float64
		check    string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Find the smallest tier sizes meeting the latency target",
		Long: "Loads generated vectors and searches for the smallest fast and index tier " +
			"sizes at which the target fraction of queries completes within the target time. " +
			"With --check a single configuration is evaluated instead.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("target-fraction") {
				cfg.TargetFraction = fraction
			}
			if cmd.Flags().Changed("target-millis") {
				cfg.TargetMillis = millis
			}
			return runOptimize(cmd.Context(), cmd.OutOrStdout(), cfg, f, check)
		},
	}

	fl := cmd.Flags()
	addDataFlags(fl, &f)
	fl.Float64Var(&fraction, "target-fraction", 0.8, "fraction of queries that must meet the target")
	fl.Float64Var(&millis, "target-millis", 200, "per-query latency target in milliseconds")
	fl.StringVar(&check, "check", "", `evaluate one "fast,index" item configuration`)
	return cmd
}

func parseSizes(s string) (optimizer.Sizes, error) {
	fast, index, ok := strings.Cut(s, ",")
	if !ok {
		return optimizer.Sizes{}, fmt.Errorf("sizes %q: want fast,index", s)
	}
	f, err := strconv.Atoi(strings.TrimSpace(fast))
	if err != nil {
		return optimizer.Sizes{}, fmt.Errorf("sizes %q: %w", s, err)
	}
	i, err := strconv.Atoi(strings.TrimSpace(index))
	if err != nil {
		return optimizer.Sizes{}, fmt.Errorf("sizes %q: %w", s, err)
	}
	return optimizer.Sizes{Fast: f, Index: i}, nil
}

func runOptimize(ctx context.Context, out io.Writer, cfg config.Config, f benchFlags, check string) error {
	if f.items <= 0 || f.dim <= 0 {
		return errors.New("items and dim must be positive")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	var sizes optimizer.Sizes
	if check != "" {
		var err error
		if sizes, err = parseSizes(check); err != nil {
			return err
		}
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	e, _, err := openLoaded(ctx, cfg, f, vectier.NewTextLogger(level))
	if err != nil {
		return err
	}
	defer func() { _ = e.Close(context.WithoutCancel(ctx)) }()

	report := optimizeReport{Before: e.Sizes()}
	if check != "" {
		outcome, err := e.Check(ctx, sizes, cfg.TargetFraction, cfg.TargetMillis)
		if err != nil {
			return err
		}
		report.Outcome = &outcome
	} else if _, err := e.Optimize(ctx, cfg.TargetFraction, cfg.TargetMillis); err != nil {
		return err
	}
	report.After = e.Sizes()
	report.Records = e.Records()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
