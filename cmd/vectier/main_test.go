package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/vectier/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetErr(b)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return b.String(), err
}

func TestRootCmd(t *testing.T) {
	out, err := execute(t, "version")
	assert.NoError(t, err)
	assert.Contains(t, out, "version dev")
}

func TestConfigCmd(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "strategy: FIFO")
	assert.Contains(t, out, "repeat: 101")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: nope\n"), 0o600))
	_, err = execute(t, "config", "--config", path)
	assert.Error(t, err)
}

func TestBenchCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Repeat = 30
	cfg.FastMemory = 64 << 10
	cfg.IndexMemory = 64 << 10
	cfg.TargetMillis = 100
	cfg.LogLevel = "error"
	cfg.Store = config.StoreConfig{Type: config.StoreSQLite, Path: filepath.Join(dir, "v.db")}
	b, err := cfg.Marshal()
	require.NoError(t, err)
	path := filepath.Join(dir, "vectier.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o600))

	index := filepath.Join(dir, "index.jsonl")
	out, err := execute(t, "bench", "--config", path,
		"--items", "300", "--dim", "8", "--k", "5", "--optimize", "--export-index", index)
	require.NoError(t, err)

	var report benchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 300, report.Items)
	assert.Equal(t, 60, report.Queries)
	assert.NotEmpty(t, report.QueryAvgOpt)
	assert.Equal(t, int64(300), report.Metrics.InsertCount)
	assert.Equal(t, int64(1), report.Metrics.OptimizeCount)
	assert.NotEmpty(t, report.IndexWritten)

	info, err := os.Stat(index)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestBenchCmd_InvalidFlags(t *testing.T) {
	_, err := execute(t, "bench", "--items", "0")
	assert.Error(t, err)
	_, err = execute(t, "bench", "--zipf", "1")
	assert.Error(t, err)
}

func TestOptimizeCmd(t *testing.T) {
	out, err := execute(t, "optimize", "--items", "200", "--dim", "8", "--target-millis", "500")
	require.NoError(t, err)

	var report optimizeReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.LessOrEqual(t, report.After.Total(), report.Before.Total())
	assert.Nil(t, report.Outcome)

	out, err = execute(t, "optimize", "--items", "200", "--dim", "8", "--check", "0,0")
	require.NoError(t, err)
	report = optimizeReport{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotNil(t, report.Outcome)
	assert.False(t, report.Outcome.Accepted)
	assert.Empty(t, report.Records)
}

func TestParseSizes(t *testing.T) {
	s, err := parseSizes("12, 40")
	require.NoError(t, err)
	assert.Equal(t, 12, s.Fast)
	assert.Equal(t, 40, s.Index)

	for _, bad := range []string{"12", "a,1", "1,b"} {
		_, err := parseSizes(bad)
		assert.Error(t, err, bad)
	}
}
