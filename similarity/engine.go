package similarity

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/c360studio/semsimilar/collection"
	"github.com/c360studio/semsimilar/source"
)

// AppendAt tells the caller where to splice a rendered section.
type AppendAt string

// Supported insertion points.
const (
	AppendAtStart AppendAt = "start"
	AppendAtEnd   AppendAt = "end"
)

// Candidate is a document paired with its similarity score.
type Candidate struct {
	Document *source.Document
	Score    float64
}

// Section is the rendered similar-documents block for one document.
type Section struct {
	// Block is the rendered markup.
	Block string

	// AppendAt is the configured insertion point. The engine does not check
	// it; the splice step rejects unsupported values.
	AppendAt AppendAt

	// Candidates are the ranked documents the block links to.
	Candidates []Candidate
}

// Observer receives every computed score, before threshold filtering.
type Observer interface {
	ObserveScore(score float64)
}

// Options configures an Engine.
type Options struct {
	// Threshold is the inclusive minimum score.
	Threshold float64

	// MaxShown caps the rendered results. 0 or negative keeps all.
	MaxShown int

	// Title is the heading of the rendered block.
	Title string

	// AppendAt is passed through to every Section.
	AppendAt AppendAt

	// Metric selects the scoring formula. Empty means weighted.
	Metric Metric

	// Observer, if set, sees each candidate score.
	Observer Observer
}

// Engine computes similar-document sections. It holds no state between calls.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an engine with the given options.
func NewEngine(opts Options, logger *slog.Logger) (*Engine, error) {
	metric, err := ParseMetric(string(opts.Metric))
	if err != nil {
		return nil, err
	}
	opts.Metric = metric

	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, errors.New("similarity threshold must be between 0 and 1")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{opts: opts, logger: logger}, nil
}

// Options returns the effective engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// Candidates gathers and scores every document of coll sharing at least one
// category with doc, in discovery order: collection category order, then
// listing order within the category. The document itself is excluded and a
// document listed under several shared categories is scored once.
func (e *Engine) Candidates(doc *source.Document, coll *collection.Collection) []Candidate {
	if doc == nil || coll == nil || len(doc.Categories) == 0 {
		return nil
	}

	visited := map[string]bool{doc.ID(): true}

	var candidates []Candidate
	for _, cat := range coll.Categories() {
		if !doc.HasCategory(cat.Name) {
			continue
		}

		for _, other := range cat.Documents {
			if visited[other.ID()] {
				continue
			}
			visited[other.ID()] = true

			score := Score(e.opts.Metric, doc.Categories, other.Categories)
			if e.opts.Observer != nil {
				e.opts.Observer.ObserveScore(score)
			}
			candidates = append(candidates, Candidate{Document: other, Score: score})
		}
	}

	return candidates
}

// Rank returns the candidates meeting the threshold, best first, truncated to
// MaxShown.
func (e *Engine) Rank(doc *source.Document, coll *collection.Collection) []Candidate {
	var ranked []Candidate
	for _, c := range e.Candidates(doc, coll) {
		if c.Score >= e.opts.Threshold {
			ranked = append(ranked, c)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if e.opts.MaxShown > 0 && len(ranked) > e.opts.MaxShown {
		ranked = ranked[:e.opts.MaxShown]
	}

	return ranked
}

// Compute renders the similar-documents section for doc. It reports false
// when doc has no categories or no candidate meets the threshold.
func (e *Engine) Compute(doc *source.Document, coll *collection.Collection) (*Section, bool) {
	if doc == nil || len(doc.Categories) == 0 {
		return nil, false
	}

	ranked := e.Rank(doc, coll)
	if len(ranked) == 0 {
		e.logger.Debug("No similar documents", "path", doc.Path)
		return nil, false
	}

	e.logger.Debug("Ranked similar documents", "path", doc.Path, "candidates", ranked)

	block, err := Render(e.opts.Title, doc, ranked)
	if err != nil {
		e.logger.Error("Failed to render similar documents", "path", doc.Path, "error", err)
		return nil, false
	}

	return &Section{
		Block:      block,
		AppendAt:   e.opts.AppendAt,
		Candidates: ranked,
	}, true
}

// String implements fmt.Stringer for debugging output.
func (c Candidate) String() string {
	if c.Document == nil {
		return fmt.Sprintf("<nil> (%.3f)", c.Score)
	}
	return fmt.Sprintf("%s (%.3f)", c.Document.Path, c.Score)
}
