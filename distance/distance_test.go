package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, float32(0), SquaredL2([]float32{1, 2, 3}, []float32{1, 2, 3}))
	assert.Equal(t, float32(25), SquaredL2([]float32{0, 0, 0, 0, 0}, []float32{1, 2, 2, 0, 4}))
}

func TestDot(t *testing.T) {
	assert.Equal(t, float32(60), Dot([]float32{1, 2, 3, 4, 5}, []float32{5, 4, 3, 2, 6}))
	assert.Equal(t, float32(-60), NegDot([]float32{1, 2, 3, 4, 5}, []float32{5, 4, 3, 2, 6}))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 1, Cosine([]float32{1, 0}, []float32{0, 3}), 1e-6)
	assert.Equal(t, float32(1), Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{MetricL2, MetricCosine, MetricDot} {
		fn, err := Provider(m)
		require.NoError(t, err)
		assert.NotNil(t, fn)

		parsed, err := ParseMetric(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := Provider(Metric(9))
	assert.Error(t, err)
	assert.Equal(t, "Unknown(9)", Metric(9).String())
}
