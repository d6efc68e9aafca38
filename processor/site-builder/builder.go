// Package sitebuilder runs the site build: it discovers the markdown tree,
// indexes the blog collections, splices a similar-posts section into every
// eligible document and writes the result to the output directory.
package sitebuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semsimilar/collection"
	"github.com/c360studio/semsimilar/config"
	"github.com/c360studio/semsimilar/similarity"
	"github.com/c360studio/semsimilar/source"
	"github.com/c360studio/semsimilar/source/parser"
)

var (
	// ErrDocumentNotFound is returned by Explain for a path outside the build.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNoCollection is returned by Explain for a document no collection
	// root covers.
	ErrNoCollection = errors.New("document is not in a similarity collection")
)

// DocumentResult describes what a build did with one document.
type DocumentResult struct {
	Path    string   `json:"path"`
	Similar []string `json:"similar,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Report summarizes a build.
type Report struct {
	BuildID   string           `json:"build_id"`
	Documents int              `json:"documents"`
	Sections  int              `json:"sections"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Pruned    int              `json:"pruned"`
	Duration  time.Duration    `json:"duration"`
	Results   []DocumentResult `json:"results,omitempty"`
}

// Builder runs builds for one configuration.
type Builder struct {
	config  *config.Config
	engine  *similarity.Engine
	parsers *parser.Registry
	metrics *Metrics
	logger  *slog.Logger

	// DryRun computes sections without writing the output tree.
	DryRun bool
}

// NewBuilder validates cfg and prepares the similarity engine. metrics may be
// nil.
func NewBuilder(cfg *config.Config, metrics *Metrics, logger *slog.Logger) (*Builder, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	engine, err := similarity.NewEngine(EngineOptions(cfg.Similar, metrics), logger)
	if err != nil {
		return nil, err
	}

	return &Builder{
		config:  cfg,
		engine:  engine,
		parsers: parser.DefaultRegistry,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// EngineOptions maps the similar section of the configuration onto engine
// options.
func EngineOptions(cfg config.SimilarConfig, observer similarity.Observer) similarity.Options {
	return similarity.Options{
		Threshold: cfg.SimilarityThreshold,
		MaxShown:  cfg.MaxShown,
		Title:     cfg.Title,
		AppendAt:  similarity.AppendAt(cfg.AppendAt),
		Metric:    similarity.Metric(cfg.Metric),
		Observer:  observer,
	}
}

// page is one discovered file.
type page struct {
	rel     string
	content []byte
	doc     *source.Document
}

// index is the parsed tree of one build.
type index struct {
	pages    []*page
	docs     []*source.Document
	resolver *collection.Resolver
	failed   int

	// sources holds every discovered path, readable or not.
	sources map[string]struct{}
}

// Build runs one full pass over the docs directory.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{BuildID: uuid.New().String()}
	logger := b.logger.With("build_id", report.BuildID)

	logger.Info("Build started",
		"docs_dir", b.config.Site.DocsDir,
		"output_dir", b.config.Site.OutputDir,
		"dry_run", b.DryRun)

	idx, err := b.index(ctx, logger)
	if err != nil {
		return nil, err
	}
	report.Failed = idx.failed

	for _, p := range idx.pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := DocumentResult{Path: p.rel}
		out := p.content

		if p.doc != nil {
			b.metrics.documentProcessed()
			report.Documents++

			rendered, similar, err := b.render(p.doc, idx.resolver)
			switch {
			case err != nil:
				logger.Error("Failed to splice similar posts", "path", p.rel, "error", err)
				b.metrics.documentFailed(stageSplice)
				report.Failed++
				result.Error = err.Error()
			case len(similar) > 0:
				out = []byte(rendered)
				result.Similar = similar
				report.Sections++
				b.metrics.sectionRendered()
			default:
				report.Skipped++
			}
		}

		if !b.DryRun {
			if err := b.write(p.rel, out); err != nil {
				logger.Error("Failed to write document", "path", p.rel, "error", err)
				b.metrics.documentFailed(stageWrite)
				report.Failed++
				result.Error = err.Error()
			}
		}

		report.Results = append(report.Results, result)
	}

	if !b.DryRun {
		report.Pruned = b.prune(idx.sources, logger)
	}

	report.Duration = time.Since(start)
	b.metrics.buildFinished(report.Duration)

	logger.Info("Build finished",
		"documents", report.Documents,
		"sections", report.Sections,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"pruned", report.Pruned,
		"duration", report.Duration)

	return report, nil
}

// Explain returns the ranked candidates for the document at docPath, a path
// relative to the docs directory.
func (b *Builder) Explain(ctx context.Context, docPath string) ([]similarity.Candidate, error) {
	idx, err := b.index(ctx, b.logger)
	if err != nil {
		return nil, err
	}

	want := source.CleanPath(docPath)
	for _, doc := range idx.docs {
		if doc.Path != want {
			continue
		}
		coll, ok := idx.resolver.Resolve(doc.Path)
		if !ok {
			return nil, fmt.Errorf("%s: %w", want, ErrNoCollection)
		}
		return b.engine.Rank(doc, coll), nil
	}

	return nil, fmt.Errorf("%s: %w", want, ErrDocumentNotFound)
}

// render computes the section for doc and splices it into the content. It
// returns the paths of the linked documents, empty when nothing was added.
func (b *Builder) render(doc *source.Document, resolver *collection.Resolver) (string, []string, error) {
	coll, ok := resolver.Resolve(doc.Path)
	if !ok {
		return "", nil, nil
	}

	section, ok := b.engine.Compute(doc, coll)
	if !ok {
		return "", nil, nil
	}

	body, err := Splice(doc.Body, section.Block, section.AppendAt)
	if err != nil {
		return "", nil, err
	}

	similar := make([]string, len(section.Candidates))
	for i, c := range section.Candidates {
		similar[i] = c.Document.Path
	}

	frontmatter := strings.TrimSuffix(doc.Content, doc.Body)
	return frontmatter + body, similar, nil
}

// index discovers, reads and parses the docs tree, then builds the blog
// collections and the resolver over them.
func (b *Builder) index(ctx context.Context, logger *slog.Logger) (*index, error) {
	site := b.config.Site

	files, err := source.Discover(site.DocsDir, site.Include, site.ExcludeDirs)
	if err != nil {
		return nil, fmt.Errorf("discover documents: %w", err)
	}

	outputRel := within(site.DocsDir, site.OutputDir)

	idx := &index{sources: make(map[string]struct{}, len(files))}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if outputRel != "" && strings.HasPrefix(rel, outputRel+"/") {
			continue
		}
		idx.sources[rel] = struct{}{}

		content, err := os.ReadFile(filepath.Join(site.DocsDir, filepath.FromSlash(rel)))
		if err != nil {
			logger.Error("Failed to read document", "path", rel, "error", err)
			b.metrics.documentFailed(stageRead)
			idx.failed++
			continue
		}

		p := &page{rel: rel, content: content}
		doc, err := b.parsers.Parse(rel, content)
		if err != nil {
			logger.Warn("Failed to parse document, copying unchanged", "path", rel, "error", err)
			b.metrics.documentFailed(stageParse)
			idx.failed++
		} else {
			p.doc = doc
			idx.docs = append(idx.docs, doc)
		}
		idx.pages = append(idx.pages, p)
	}

	var collections []*collection.Collection
	for _, blog := range site.Blogs {
		if !blog.IsEnabled() {
			logger.Debug("Blog disabled", "dir", blog.Dir)
			continue
		}
		coll := collection.Build(blog.Dir, idx.docs)
		logger.Debug("Indexed blog collection",
			"root", coll.Root(),
			"documents", coll.Len(),
			"categories", len(coll.Categories()))
		collections = append(collections, coll)
	}

	idx.resolver = collection.NewResolver(b.config.Similar.CollectionRoots, collections, logger)
	return idx, nil
}

// prune removes output files matching the include patterns that no longer
// have a source document, then any directories left empty. Only paths the
// build itself would produce are touched, so the output directory may hold
// other files. It returns the number of files removed.
func (b *Builder) prune(sources map[string]struct{}, logger *slog.Logger) int {
	site := b.config.Site

	if _, err := os.Stat(site.OutputDir); errors.Is(err, os.ErrNotExist) {
		return 0
	}

	files, err := source.Discover(site.OutputDir, site.Include, site.ExcludeDirs)
	if err != nil {
		logger.Error("Failed to scan output directory", "error", err)
		b.metrics.documentFailed(stagePrune)
		return 0
	}

	// The docs tree may sit inside the output directory.
	docsRel := within(site.OutputDir, site.DocsDir)

	pruned := 0
	for _, rel := range files {
		if _, ok := sources[rel]; ok {
			continue
		}
		if docsRel != "" && strings.HasPrefix(rel, docsRel+"/") {
			continue
		}

		dst := filepath.Join(site.OutputDir, filepath.FromSlash(rel))
		if err := os.Remove(dst); err != nil {
			logger.Error("Failed to remove stale output", "path", rel, "error", err)
			b.metrics.documentFailed(stagePrune)
			continue
		}
		logger.Debug("Removed stale output", "path", rel)
		pruned++

		removeEmptyDirs(site.OutputDir, filepath.Dir(dst))
	}

	return pruned
}

// removeEmptyDirs removes dir and its parents up to, not including, root
// while they are empty.
func removeEmptyDirs(root, dir string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			return
		}
	}
}

// within returns child relative to parent, slash-separated, when child lies
// strictly inside parent, and "" otherwise.
func within(parent, child string) string {
	p, err := filepath.Abs(parent)
	if err != nil {
		return ""
	}
	c, err := filepath.Abs(child)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(p, c)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (b *Builder) write(rel string, content []byte) error {
	dst := filepath.Join(b.config.Site.OutputDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return os.WriteFile(dst, content, 0644)
}
