package sitebuilder

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsimilar/config"
)

const d1Source = `---
title: D1
categories: [go, rust]
date: 2024-03-01
---
# D1

First post.
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// newSite lays out a docs tree with three blog posts, a draft, a page
// outside the blog and an index, and returns a config pointing at it.
func newSite(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "docs")

	writeFile(t, docs, "index.md", "# Home\n\nWelcome.\n")
	writeFile(t, docs, "blog/d1.md", d1Source)
	writeFile(t, docs, "blog/d2.md", "---\ntitle: D2\ncategories: go\ndate: 2024-02-01\n---\nSecond post.\n")
	writeFile(t, docs, "blog/d3.md", "---\ntitle: D3\ncategories: [go, rust, cpp]\ndate: 2024-01-01\n---\nThird post.\n")
	writeFile(t, docs, "blog/draft.md", "---\ntitle: Draft\ncategories: [go, rust]\ndraft: true\n---\nNot yet.\n")
	writeFile(t, docs, "notes/n.md", "---\ntitle: Note\ncategories: [go, rust]\n---\nA note.\n")

	cfg := config.DefaultConfig()
	cfg.Site.DocsDir = docs
	cfg.Site.OutputDir = filepath.Join(root, "site")
	cfg.Site.Blogs = []config.BlogConfig{{Dir: "blog"}}
	cfg.Similar.CollectionRoots = config.StringList{"blog"}
	cfg.Similar.SimilarityThreshold = 0.5
	cfg.Similar.MaxShown = 10
	return cfg
}

func newTestBuilder(t *testing.T, cfg *config.Config) (*Builder, *Metrics) {
	t.Helper()
	metrics := NewMetrics()
	b, err := NewBuilder(cfg, metrics, nil)
	require.NoError(t, err)
	return b, metrics
}

func TestNewBuilder_RejectsInvalidConfig(t *testing.T) {
	_, err := NewBuilder(nil, nil, nil)
	assert.Error(t, err)

	cfg := config.DefaultConfig()
	cfg.Similar.AppendAt = "middle"
	_, err = NewBuilder(cfg, nil, nil)
	assert.ErrorIs(t, err, config.ErrUnsupportedAppendAt)

	cfg = config.DefaultConfig()
	cfg.Similar.Metric = "cosine"
	_, err = NewBuilder(cfg, nil, nil)
	assert.ErrorIs(t, err, config.ErrUnsupportedMetric)
}

func TestBuilder_Build(t *testing.T) {
	cfg := newSite(t)
	b, metrics := newTestBuilder(t, cfg)

	report, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.BuildID)
	assert.Equal(t, 6, report.Documents)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, report.Documents, report.Sections+report.Skipped)
	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.documents))

	out := cfg.Site.OutputDir

	d1 := readFile(t, out, "blog/d1.md")
	assert.True(t, strings.HasPrefix(d1, d1Source), "source content and frontmatter are kept")
	assert.Contains(t, d1, "- [D3](d3.md)\n- [D2](d2.md)\n")
	assert.True(t, strings.HasSuffix(d1, "</div>\n</div>"))
	assert.NotContains(t, d1, "draft.md", "drafts are never candidates")
	assert.NotContains(t, d1, "n.md", "documents outside the collection are never candidates")

	d2 := readFile(t, out, "blog/d2.md")
	assert.Contains(t, d2, "- [D1](d1.md)\n- [D3](d3.md)\n")

	assert.Equal(t, "# Home\n\nWelcome.\n", readFile(t, out, "index.md"))
	assert.Equal(t, readFile(t, cfg.Site.DocsDir, "notes/n.md"), readFile(t, out, "notes/n.md"))

	results := make(map[string]DocumentResult)
	for _, r := range report.Results {
		results[r.Path] = r
	}
	assert.Equal(t, []string{"blog/d3.md", "blog/d2.md"}, results["blog/d1.md"].Similar)
	assert.Empty(t, results["index.md"].Similar)
}

func TestBuilder_Build_MaxShownAndThreshold(t *testing.T) {
	cfg := newSite(t)
	cfg.Similar.MaxShown = 1
	b, _ := newTestBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	d1 := readFile(t, cfg.Site.OutputDir, "blog/d1.md")
	assert.Contains(t, d1, "(d3.md)")
	assert.NotContains(t, d1, "(d2.md)")

	cfg = newSite(t)
	cfg.Similar.SimilarityThreshold = 0.9
	b, _ = newTestBuilder(t, cfg)

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sections)
	assert.Equal(t, d1Source, readFile(t, cfg.Site.OutputDir, "blog/d1.md"))
}

func TestBuilder_Build_AppendAtStart(t *testing.T) {
	cfg := newSite(t)
	cfg.Similar.AppendAt = config.AppendAtStart
	b, _ := newTestBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	d1 := readFile(t, cfg.Site.OutputDir, "blog/d1.md")
	heading := strings.Index(d1, "# D1\n")
	section := strings.Index(d1, "<div class=\"nype-similar\"")
	text := strings.Index(d1, "First post.")
	require.NotEqual(t, -1, heading)
	require.NotEqual(t, -1, section)
	assert.Less(t, heading, section)
	assert.Less(t, section, text)
}

func TestBuilder_Build_UnboundPrefix(t *testing.T) {
	cfg := newSite(t)
	cfg.Similar.CollectionRoots = config.StringList{"news"}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b, err := NewBuilder(cfg, nil, logger)
	require.NoError(t, err)

	report, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Sections)
	assert.Contains(t, logs.String(), "Prefix not found among the blog collections")
	assert.Contains(t, logs.String(), "build_id="+report.BuildID)
}

func TestBuilder_Build_DisabledBlog(t *testing.T) {
	cfg := newSite(t)
	disabled := false
	cfg.Site.Blogs[0].Enabled = &disabled
	b, _ := newTestBuilder(t, cfg)

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sections)
}

func TestBuilder_Build_DryRun(t *testing.T) {
	cfg := newSite(t)
	b, _ := newTestBuilder(t, cfg)
	b.DryRun = true

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Positive(t, report.Sections)

	_, err = os.Stat(cfg.Site.OutputDir)
	assert.True(t, os.IsNotExist(err), "dry run writes nothing")
}

func TestBuilder_Build_UnparseableFileCopied(t *testing.T) {
	cfg := newSite(t)
	cfg.Site.Include = []string{"**/*.md", "**/*.csv"}
	writeFile(t, cfg.Site.DocsDir, "data/table.csv", "a,b\n1,2\n")
	b, metrics := newTestBuilder(t, cfg)

	report, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.errors.WithLabelValues(stageParse)))
	assert.Equal(t, "a,b\n1,2\n", readFile(t, cfg.Site.OutputDir, "data/table.csv"))
}

func TestBuilder_Build_OutputInsideDocs(t *testing.T) {
	cfg := newSite(t)
	cfg.Site.OutputDir = filepath.Join(cfg.Site.DocsDir, "public")
	b, _ := newTestBuilder(t, cfg)

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	second, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Documents, second.Documents, "the output tree is never read back")
	_, err = os.Stat(filepath.Join(cfg.Site.OutputDir, "public"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuilder_Build_PrunesDeletedDocuments(t *testing.T) {
	cfg := newSite(t)
	writeFile(t, cfg.Site.DocsDir, "old/gone.md", "# Gone\n")
	b, metrics := newTestBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	writeFile(t, cfg.Site.OutputDir, "assets/style.css", "body {}\n")

	require.NoError(t, os.Remove(filepath.Join(cfg.Site.DocsDir, "blog", "d3.md")))
	require.NoError(t, os.RemoveAll(filepath.Join(cfg.Site.DocsDir, "old")))

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pruned)
	assert.Zero(t, testutil.ToFloat64(metrics.errors.WithLabelValues(stagePrune)))

	_, err = os.Stat(filepath.Join(cfg.Site.OutputDir, "blog", "d3.md"))
	assert.True(t, os.IsNotExist(err), "output of a deleted document is removed")
	_, err = os.Stat(filepath.Join(cfg.Site.OutputDir, "old"))
	assert.True(t, os.IsNotExist(err), "emptied directories are removed")

	assert.NotContains(t, readFile(t, cfg.Site.OutputDir, "blog/d2.md"), "d3.md")
	assert.Equal(t, "body {}\n", readFile(t, cfg.Site.OutputDir, "assets/style.css"), "files outside the include patterns are kept")
}

func TestBuilder_Build_DryRunDoesNotPrune(t *testing.T) {
	cfg := newSite(t)
	b, _ := newTestBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(cfg.Site.DocsDir, "blog", "d3.md")))

	b.DryRun = true
	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Pruned)

	_, err = os.Stat(filepath.Join(cfg.Site.OutputDir, "blog", "d3.md"))
	assert.NoError(t, err)
}

func TestBuilder_Build_DocsInsideOutput(t *testing.T) {
	cfg := newSite(t)
	cfg.Site.OutputDir = filepath.Dir(cfg.Site.DocsDir)
	b, _ := newTestBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	report, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Pruned)
	assert.Equal(t, d1Source, readFile(t, cfg.Site.DocsDir, "blog/d1.md"), "sources are never pruned")
	assert.Contains(t, readFile(t, cfg.Site.OutputDir, "blog/d1.md"), "(d3.md)")
}

func TestBuilder_Build_MissingDocsDir(t *testing.T) {
	cfg := newSite(t)
	cfg.Site.DocsDir = filepath.Join(t.TempDir(), "missing")
	b, _ := newTestBuilder(t, cfg)

	_, err := b.Build(context.Background())
	assert.Error(t, err)
}

func TestBuilder_Build_Cancelled(t *testing.T) {
	cfg := newSite(t)
	b, _ := newTestBuilder(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder_Explain(t *testing.T) {
	cfg := newSite(t)
	b, _ := newTestBuilder(t, cfg)
	ctx := context.Background()

	ranked, err := b.Explain(ctx, "./blog/d1.md")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "blog/d3.md", ranked[0].Document.Path)
	assert.InDelta(t, 2/2.4, ranked[0].Score, 1e-9)
	assert.Equal(t, "blog/d2.md", ranked[1].Document.Path)
	assert.InDelta(t, 0.75, ranked[1].Score, 1e-9)

	_, err = b.Explain(ctx, "blog/missing.md")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = b.Explain(ctx, "notes/n.md")
	assert.ErrorIs(t, err, ErrNoCollection)

	_, err = os.Stat(cfg.Site.OutputDir)
	assert.True(t, os.IsNotExist(err), "explain writes nothing")
}

func TestEngineOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Similar.Metric = config.MetricUnweighted
	m := NewMetrics()

	opts := EngineOptions(cfg.Similar, m)
	assert.Equal(t, 0.5, opts.Threshold)
	assert.Equal(t, 3, opts.MaxShown)
	assert.Equal(t, "Similar posts", opts.Title)
	assert.Equal(t, "end", string(opts.AppendAt))
	assert.Equal(t, "unweighted", string(opts.Metric))
	assert.Same(t, m, opts.Observer)
}

func TestWatchExtensions(t *testing.T) {
	assert.Equal(t, []string{".md"}, WatchExtensions([]string{"**/*.md", "blog/*.md"}))
	assert.Equal(t, []string{".md", ".markdown"}, WatchExtensions([]string{"**/*.{md,markdown}"}))
	assert.Equal(t, []string{".md", ".txt"}, WatchExtensions([]string{"**/*.MD", "notes/*.txt"}))
}
