package export

import (
	"bytes"
	"strings"
)

// exportTXT renders the document as plain text with an underlined
// title heading.
func exportTXT(title, content string) (*Result, error) {
	var buf bytes.Buffer
	buf.WriteString(title)
	buf.WriteString("\n")
	buf.WriteString(strings.Repeat("=", len([]rune(title))))
	buf.WriteString("\n\n")
	buf.WriteString(HTMLToPlainText(content))
	buf.WriteString("\n")

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(title) + ".txt",
		MimeType: "text/plain; charset=utf-8",
	}, nil
}
