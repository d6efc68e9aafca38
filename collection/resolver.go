package collection

import (
	"log/slog"
	"strings"

	"github.com/c360studio/semsimilar/source"
)

// Resolver maps document paths to the collection configured for their prefix.
type Resolver struct {
	prefixes []string
	bound    map[string]*Collection
}

// NewResolver binds each configured root prefix to the collection with the
// same root. Prefixes are matched in configuration order. A prefix without a
// collection is logged as a warning; documents under it resolve to nothing.
func NewResolver(roots []string, collections []*Collection, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		bound: make(map[string]*Collection),
	}

	byRoot := make(map[string]*Collection, len(collections))
	for _, c := range collections {
		if c != nil {
			byRoot[c.Root()] = c
		}
	}

	seen := make(map[string]bool, len(roots))
	for _, root := range roots {
		prefix := NormalizeRoot(root)
		if seen[prefix] {
			continue
		}
		seen[prefix] = true
		r.prefixes = append(r.prefixes, prefix)

		if c, ok := byRoot[prefix]; ok {
			r.bound[prefix] = c
			continue
		}
		logger.Warn("Prefix not found among the blog collections", "prefix", prefix)
	}

	if len(r.bound) > 0 {
		logger.Info("Found matching blog collections", "count", len(r.bound))
	}

	return r
}

// Resolve returns the collection of the first prefix docPath starts with.
// It reports false when no prefix matches or the matching prefix has no
// collection.
func (r *Resolver) Resolve(docPath string) (*Collection, bool) {
	docPath = source.CleanPath(docPath)
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(docPath, prefix) {
			c, ok := r.bound[prefix]
			return c, ok
		}
	}
	return nil, false
}
