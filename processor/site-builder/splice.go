package sitebuilder

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/c360studio/semsimilar/config"
	"github.com/c360studio/semsimilar/similarity"
)

// ErrUnsupportedAppendAt is returned by Splice for an unknown insertion point.
var ErrUnsupportedAppendAt = config.ErrUnsupportedAppendAt

var markdown = goldmark.New()

// Splice inserts block into body at the given insertion point.
//
// At the end, the block follows the body after a blank line. At the start,
// the block precedes the body, unless the body opens with a level-1 heading:
// then the block goes right after that heading so the page title stays first.
// The heading is detected on the parsed markdown tree, so a "#" line inside a
// code block or a heading further down does not count.
//
// Separators follow the body's line endings: a body using CRLF gets CRLF
// separators and a CRLF block.
//
// For any other insertion point the body is returned unchanged together with
// ErrUnsupportedAppendAt.
func Splice(body, block string, at similarity.AppendAt) (string, error) {
	nl := lineEnding(body)
	if nl != "\n" {
		block = strings.ReplaceAll(block, "\n", nl)
	}

	switch at {
	case similarity.AppendAtEnd:
		return body + nl + nl + block, nil

	case similarity.AppendAtStart:
		end, ok := leadingHeadingEnd(body)
		if !ok {
			return block + nl + nl + body, nil
		}
		head := strings.TrimRight(body[:end], "\r\n")
		rest := strings.TrimLeft(body[end:], "\r\n")
		if rest == "" {
			return head + nl + nl + block + nl, nil
		}
		return head + nl + nl + block + nl + nl + rest, nil

	default:
		return body, fmt.Errorf("%w: %q", ErrUnsupportedAppendAt, at)
	}
}

// leadingHeadingEnd returns the byte offset just past a level-1 heading that
// is the first block of body.
func leadingHeadingEnd(body string) (int, bool) {
	src := []byte(body)
	root := markdown.Parser().Parse(text.NewReader(src))

	heading, ok := root.FirstChild().(*ast.Heading)
	if !ok || heading.Level != 1 {
		return 0, false
	}

	lines := heading.Lines()
	if lines.Len() == 0 {
		return emptyHeadingEnd(body)
	}
	last := lines.At(lines.Len() - 1)

	end := lineEnd(body, max(last.Stop-1, last.Start))

	// A setext heading is underlined on the following line.
	lineStart := strings.LastIndexByte(body[:last.Start], '\n') + 1
	if !strings.HasPrefix(strings.TrimLeft(body[lineStart:last.Start], " "), "#") {
		end = lineEnd(body, end)
	}

	return end, true
}

// emptyHeadingEnd finds the line of a level-1 ATX heading without text, as
// in "#" or "# #".
func emptyHeadingEnd(body string) (int, bool) {
	for pos := 0; pos < len(body); {
		end := lineEnd(body, pos)
		line := strings.TrimLeft(strings.TrimRight(body[pos:end], "\r\n"), " ")
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "##") && strings.Trim(line, " \t#") == "" {
			return end, true
		}
		pos = end
	}
	return 0, false
}

// lineEnding returns "\r\n" when the first line break of s is CRLF, "\n"
// otherwise.
func lineEnding(s string) string {
	if i := strings.IndexByte(s, '\n'); i > 0 && s[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// lineEnd returns the offset after the newline ending the line containing pos.
func lineEnd(s string, pos int) int {
	if pos >= len(s) {
		return len(s)
	}
	idx := strings.IndexByte(s[pos:], '\n')
	if idx == -1 {
		return len(s)
	}
	return pos + idx + 1
}
