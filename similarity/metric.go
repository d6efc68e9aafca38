// Package similarity ranks documents of a collection by how much their
// category sets overlap with a given document, and renders the best matches
// as a markdown link list.
//
// # Scoring
//
// The default metric is a weighted Jaccard similarity. For category sets A
// and B:
//
//	wA    = |B| / (|A|+|B|)
//	wB    = |A| / (|A|+|B|)
//	score = |A∩B| / (wA·|A| + wB·|B|)
//
// The weights balance set sizes, so a document with many categories does not
// dominate matches against documents with few. The plain Jaccard index
// |A∩B| / |A∪B| is available as MetricUnweighted. Both formulas are symmetric
// in A and B, and either empty set scores 0.
//
// # Ranking
//
// Candidates are gathered per shared category in index order, each scored
// once, filtered by an inclusive threshold, stable-sorted by descending score
// and truncated. Equal scores keep their discovery order, so the output is
// reproducible for identical input.
package similarity

import (
	"fmt"

	"github.com/c360studio/semsimilar/config"
)

// Metric selects the scoring formula.
type Metric string

// Supported metrics.
const (
	MetricWeighted   Metric = "weighted"
	MetricUnweighted Metric = "unweighted"
)

// ErrUnsupportedMetric is returned by ParseMetric for unknown metric names.
// It is the same value config validation reports.
var ErrUnsupportedMetric = config.ErrUnsupportedMetric

// ParseMetric converts a configuration value into a Metric. The empty string
// selects the weighted metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricWeighted:
		return MetricWeighted, nil
	case MetricUnweighted:
		return MetricUnweighted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMetric, s)
	}
}

// set is a category set.
type set map[string]struct{}

func newSet(items []string) set {
	s := make(set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s set) intersection(other set) int {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	n := 0
	for item := range small {
		if _, ok := large[item]; ok {
			n++
		}
	}
	return n
}

// Score computes the similarity of two category lists under metric m.
// Duplicate labels count once.
func Score(m Metric, a, b []string) float64 {
	setA, setB := newSet(a), newSet(b)
	if m == MetricUnweighted {
		return jaccard(setA, setB)
	}
	return weightedJaccard(setA, setB)
}

func weightedJaccard(a, b set) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	numerator := float64(a.intersection(b))

	sizeA, sizeB := float64(len(a)), float64(len(b))
	weightA := sizeB / (sizeA + sizeB)
	weightB := sizeA / (sizeA + sizeB)
	denominator := weightA*sizeA + weightB*sizeB

	return numerator / denominator
}

func jaccard(a, b set) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := a.intersection(b)
	union := len(a) + len(b) - intersection

	return float64(intersection) / float64(union)
}
