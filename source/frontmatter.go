package source

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Frontmatter keys read by the build.
const (
	KeyTitle      = "title"
	KeyCategories = "categories"
	KeyDate       = "date"
	KeyDraft      = "draft"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Apply fills Title, Categories, Date and Draft from the frontmatter and body.
func (d *Document) Apply() {
	d.Categories = Categories(d.Frontmatter[KeyCategories])
	d.Title = Title(d.Frontmatter, d.Body, d.Path)
	d.Date = Date(d.Frontmatter[KeyDate])
	d.Draft = Draft(d.Frontmatter[KeyDraft])
}

// Categories normalizes a frontmatter categories value. It accepts a list or a
// single string, trims labels, drops empty ones and removes duplicates while
// keeping the first occurrence.
func Categories(v any) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		raw = []string{val}
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			switch s := item.(type) {
			case string:
				raw = append(raw, s)
			case nil:
			default:
				raw = append(raw, fmt.Sprint(s))
			}
		}
	default:
		raw = []string{fmt.Sprint(val)}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Title picks the frontmatter title, then the first level-1 heading, then a
// title derived from the filename.
func Title(frontmatter map[string]any, body, docPath string) string {
	if t, ok := frontmatter[KeyTitle].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}

	inFence := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}

	// Fall back to filename
	name := path.Base(docPath)
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// Date reads a publication date. Besides plain values it understands the
// blog form `date: {created: ...}`.
func Date(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	case map[string]any:
		return Date(val["created"])
	}
	return time.Time{}
}

// Draft reports whether a frontmatter draft value marks the document as a draft.
func Draft(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	}
	return false
}
