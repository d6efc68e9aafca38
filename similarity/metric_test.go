package similarity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsimilar/config"
)

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricWeighted, m)

	m, err = ParseMetric("unweighted")
	require.NoError(t, err)
	assert.Equal(t, MetricUnweighted, m)

	_, err = ParseMetric("cosine")
	assert.True(t, errors.Is(err, ErrUnsupportedMetric))
}

func TestParseMetric_MatchesConfigValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Similar.Metric = "cosine"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedMetric)

	_, err = ParseMetric(cfg.Similar.Metric)
	assert.ErrorIs(t, err, config.ErrUnsupportedMetric)
}

func TestScore_Weighted(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{name: "smaller candidate", a: []string{"go", "rust"}, b: []string{"go"}, want: 0.75},
		{name: "larger candidate", a: []string{"go", "rust"}, b: []string{"go", "rust", "cpp"}, want: 2 / 2.4},
		{name: "identical sets", a: []string{"go", "rust"}, b: []string{"rust", "go"}, want: 1},
		{name: "disjoint", a: []string{"go"}, b: []string{"rust"}, want: 0},
		{name: "empty a", a: nil, b: []string{"go"}, want: 0},
		{name: "empty b", a: []string{"go"}, b: []string{}, want: 0},
		{name: "duplicates count once", a: []string{"go", "go"}, b: []string{"go"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(MetricWeighted, tt.a, tt.b), 1e-12)
		})
	}
}

func TestScore_Unweighted(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{name: "subset", a: []string{"go", "rust"}, b: []string{"go"}, want: 0.5},
		{name: "superset", a: []string{"go", "rust"}, b: []string{"go", "rust", "cpp"}, want: 2.0 / 3.0},
		{name: "identical", a: []string{"go"}, b: []string{"go"}, want: 1},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(MetricUnweighted, tt.a, tt.b), 1e-12)
		})
	}
}

func TestScore_Symmetric(t *testing.T) {
	sets := [][]string{
		{"go"},
		{"go", "rust"},
		{"go", "rust", "cpp"},
		{"rust", "python", "zig", "go", "c"},
		{"python"},
	}

	for _, m := range []Metric{MetricWeighted, MetricUnweighted} {
		for _, a := range sets {
			for _, b := range sets {
				assert.Equal(t, Score(m, a, b), Score(m, b, a), "%s score(%v, %v)", m, a, b)
			}
		}
	}
}

func TestScore_WeightedFavorsBalance(t *testing.T) {
	a := []string{"go"}
	large := []string{"go", "rust", "cpp", "zig"}

	// Weighted scoring penalizes the size gap less than plain Jaccard.
	assert.Greater(t, Score(MetricWeighted, a, large), Score(MetricUnweighted, a, large))
}
