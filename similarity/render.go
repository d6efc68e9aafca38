package similarity

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/c360studio/semsimilar/source"
)

const (
	sectionOpen  = "<div class=\"nype-similar\" markdown>\n"
	titleFormat  = "<div class=\"nype-similar-title\" markdown>%s</div>\n"
	listOpen     = "<div class=\"nype-similar-list\" markdown>\n\n"
	sectionClose = "\n\n</div>\n</div>"
)

// Render builds the section markup for candidates, linking each one relative
// to the directory of from.
func Render(title string, from *source.Document, candidates []Candidate) (string, error) {
	var items strings.Builder
	for _, c := range candidates {
		link, err := RelativeLink(from.Dir(), c.Document.Path)
		if err != nil {
			return "", fmt.Errorf("link %s to %s: %w", from.Path, c.Document.Path, err)
		}
		fmt.Fprintf(&items, "- [%s](%s)\n", escapeLinkText(c.Document.Title), link)
	}

	var b strings.Builder
	b.WriteString(sectionOpen)
	fmt.Fprintf(&b, titleFormat, title)
	b.WriteString(listOpen)
	b.WriteString(items.String())
	b.WriteString(sectionClose)

	return b.String(), nil
}

// RelativeLink returns the slash-separated path from directory fromDir to
// target, walking up with "../" when target is not below fromDir. Both
// arguments are paths relative to the same docs root. Targets containing
// spaces or parentheses are wrapped in angle brackets so the markdown link
// stays valid.
func RelativeLink(fromDir, target string) (string, error) {
	base := source.CleanPath(fromDir)
	if base == "" {
		base = "."
	}

	rel, err := filepath.Rel(filepath.FromSlash(base), filepath.FromSlash(source.CleanPath(target)))
	if err != nil {
		return "", err
	}

	link := filepath.ToSlash(rel)
	if strings.ContainsAny(link, " \t()<>") {
		link = "<" + linkTargetEscaper.Replace(link) + ">"
	}
	return link, nil
}

var (
	linkTextEscaper   = strings.NewReplacer("[", `\[`, "]", `\]`)
	linkTargetEscaper = strings.NewReplacer("<", `\<`, ">", `\>`)
)

func escapeLinkText(s string) string {
	return linkTextEscaper.Replace(s)
}
