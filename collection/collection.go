// Package collection groups documents into blog collections and resolves
// which collection a document belongs to.
//
// A Collection is built once per build from already-parsed documents and is
// read-only afterwards, so it can be shared between goroutines without
// locking.
package collection

import (
	"sort"
	"strings"

	"github.com/c360studio/semsimilar/source"
)

// Category is one category listing of a collection.
type Category struct {
	// Name is the category label.
	Name string

	// Documents are the posts tagged with Name, newest first.
	Documents []*source.Document
}

// Collection is a set of documents under one root prefix, indexed by category.
type Collection struct {
	root       string
	documents  []*source.Document
	categories []*Category
	byName     map[string]*Category
}

// NormalizeRoot cleans a root prefix and makes it end with exactly one "/".
// The empty root (the whole docs tree) stays empty.
func NormalizeRoot(root string) string {
	cleaned := strings.TrimRight(source.CleanPath(root), "/")
	if cleaned == "" {
		return ""
	}
	return cleaned + "/"
}

// Build creates the collection rooted at root from the documents of a build.
// Documents outside root and drafts are left out. Categories are ordered by
// name; documents inside a category by date (newest first), then by path.
func Build(root string, docs []*source.Document) *Collection {
	c := &Collection{
		root:   NormalizeRoot(root),
		byName: make(map[string]*Category),
	}

	for _, doc := range docs {
		if doc == nil || doc.Draft || !strings.HasPrefix(doc.Path, c.root) {
			continue
		}
		c.documents = append(c.documents, doc)

		for _, name := range doc.Categories {
			cat, ok := c.byName[name]
			if !ok {
				cat = &Category{Name: name}
				c.byName[name] = cat
				c.categories = append(c.categories, cat)
			}
			cat.Documents = append(cat.Documents, doc)
		}
	}

	sort.Slice(c.categories, func(i, j int) bool {
		return c.categories[i].Name < c.categories[j].Name
	})
	for _, cat := range c.categories {
		sort.SliceStable(cat.Documents, func(i, j int) bool {
			return listedBefore(cat.Documents[i], cat.Documents[j])
		})
	}
	sort.SliceStable(c.documents, func(i, j int) bool {
		return listedBefore(c.documents[i], c.documents[j])
	})

	return c
}

// listedBefore orders posts the way a blog lists them.
func listedBefore(a, b *source.Document) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.Path < b.Path
}

// Root returns the normalized root prefix.
func (c *Collection) Root() string {
	return c.root
}

// Categories returns the category listings in index order.
func (c *Collection) Categories() []*Category {
	return c.categories
}

// Len returns the number of indexed documents.
func (c *Collection) Len() int {
	return len(c.documents)
}
