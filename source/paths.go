package source

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover expands doublestar patterns relative to root and returns the
// matching files as sorted, slash-separated relative paths.
//
// Examples:
//   - "**/*.md" → every markdown file in the tree
//   - "blog/posts/*.md" → posts directly under blog/posts
//
// Files inside a directory named in excludeDirs, or inside a hidden
// directory, are skipped. Each file is returned once even when several
// patterns match it.
func Discover(root string, patterns, excludeDirs []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat docs dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	excludes := make(map[string]bool, len(excludeDirs))
	for _, dir := range excludeDirs {
		excludes[dir] = true
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(strings.ReplaceAll(pattern, "\\", "/"), "./")
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}

		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}

		for _, match := range matches {
			if seen[match] || excluded(match, excludes) {
				continue
			}
			seen[match] = true
			files = append(files, match)
		}
	}

	sort.Strings(files)
	return files, nil
}

// excluded reports whether any directory component of rel is excluded or hidden.
func excluded(rel string, excludes map[string]bool) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if excludes[dir] || (strings.HasPrefix(dir, ".") && dir != ".") {
			return true
		}
	}
	return false
}
