// Package source provides the document model and discovery for the site build.
package source

import (
	"path"
	"strings"
	"time"
)

// Document represents a parsed markdown document with its content and metadata.
type Document struct {
	// Path is the slash-separated path relative to the docs directory.
	// It is unique within a build and doubles as the document identifier.
	Path string `json:"path"`

	// Title is the display title used as link text.
	Title string `json:"title"`

	// Categories are the normalized category labels, in declaration order.
	Categories []string `json:"categories,omitempty"`

	// Date is the publication date, zero when the frontmatter has none.
	Date time.Time `json:"date,omitempty"`

	// Draft documents are left out of category listings.
	Draft bool `json:"draft,omitempty"`

	// Content is the raw document content.
	Content string `json:"content"`

	// Frontmatter contains parsed YAML frontmatter if present.
	Frontmatter map[string]any `json:"frontmatter,omitempty"`

	// Body is the content without frontmatter.
	Body string `json:"body"`
}

// ID returns the stable identifier of the document.
func (d *Document) ID() string {
	return d.Path
}

// Dir returns the slash-separated directory containing the document.
func (d *Document) Dir() string {
	return path.Dir(d.Path)
}

// HasCategory reports whether the document is tagged with name.
func (d *Document) HasCategory(name string) bool {
	for _, c := range d.Categories {
		if c == name {
			return true
		}
	}
	return false
}

// CleanPath normalizes a document path to the slash-separated, relative form
// used for Document.Path.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}
