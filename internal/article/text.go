package article

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// PlainText strips markup from s. Script and style contents are dropped and
// whitespace runs collapse to single spaces.
func PlainText(s string) string {
	return strings.Join(strings.Fields(blockText(s)), " ")
}

// Paragraphs splits s into plain-text paragraphs at block element boundaries
// (p, div, br, li, headings, blockquote). Content without markup is split on
// newlines. Whitespace inside a paragraph collapses to single spaces.
func Paragraphs(s string) []string {
	var out []string
	for _, line := range strings.Split(blockText(s), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// blockText strips markup from s, marking block boundaries with newlines.
// Newlines inside markup text are source formatting and become spaces.
func blockText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return s
			}
			return b.String()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skip++
			case isBlock(tag):
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				if skip > 0 {
					skip--
				}
			case isBlock(tag):
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.WriteString(strings.ReplaceAll(string(z.Text()), "\n", " "))
			}
		}
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "br", "p", "div", "li", "blockquote", "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// Excerpt returns at most n runes of the plain text of s, cut at a word
// boundary when one is close, with an ellipsis appended when truncated.
func Excerpt(s string, n int) string {
	s = PlainText(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "…"
}
