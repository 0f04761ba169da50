package export

import (
	"html"
	"regexp"
	"strings"
)

var (
	brPattern    = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockEndPat  = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|blockquote)>`)
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	blankRunsPat = regexp.MustCompile(`\n{3,}`)
)

// HTMLToPlainText flattens editor HTML into plain text. Line breaks
// become newlines, block closers become paragraph breaks, all other
// tags are dropped, and entities are decoded.
func HTMLToPlainText(content string) string {
	text := brPattern.ReplaceAllString(content, "\n")
	text = blockEndPat.ReplaceAllString(text, "\n\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankRunsPat.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
