// Package importer extracts document content from uploaded TXT, DOCX,
// and PDF files, normalizing it to the editor's HTML shape.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// MaxFileSize bounds uploads at 30MB.
const MaxFileSize = 30 * 1024 * 1024

var (
	// ErrFileTooLarge indicates the upload exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("import file too large")
	// ErrUnsupportedType indicates a file extension outside the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyDocument indicates no usable text was extracted.
	ErrEmptyDocument = errors.New("no text content found in file")
	// ErrDOCXDependencyMissing indicates DOCX import runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("import docx dependency missing")
	// ErrPDFDependencyMissing indicates PDF import runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("import pdf dependency missing")
)

// Result is the outcome of an import.
type Result struct {
	Title   string
	Content string // editor HTML
}

// Service extracts text from uploaded files.
type Service struct{}

// NewService creates an import service.
func NewService() *Service {
	return &Service{}
}

// Import converts an uploaded file into editor HTML. The document title
// is derived from the filename.
func (s *Service) Import(filename string, data []byte) (*Result, error) {
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	var text string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		text, err = extractTXT(data)
	case ".docx":
		text, err = extractDOCX(data)
	case ".pdf":
		text, err = extractPDF(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}

	content := TextToHTML(text)
	if content == "<p></p>" {
		return nil, ErrEmptyDocument
	}

	title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if strings.TrimSpace(title) == "" {
		title = "Imported Document"
	}

	return &Result{Title: title, Content: content}, nil
}

// TextToHTML wraps each blank-line-separated paragraph in <p> tags,
// with single newlines inside a paragraph rendered as <br>.
func TextToHTML(text string) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	var sb strings.Builder
	for _, paragraph := range strings.Split(normalized, "\n\n") {
		p := strings.TrimSpace(paragraph)
		if p == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		sb.WriteString("</p>")
	}
	if sb.Len() == 0 {
		return "<p></p>"
	}
	return sb.String()
}

// extractTXT decodes plain text, tolerating UTF-16 files with a BOM
// and latin-1 as a last resort.
func extractTXT(data []byte) (string, error) {
	if len(data) >= 2 {
		if data[0] == 0xFF && data[1] == 0xFE {
			return decodeUTF16(data[2:], false), nil
		}
		if data[0] == 0xFE && data[1] == 0xFF {
			return decodeUTF16(data[2:], true), nil
		}
	}
	// UTF-8 BOM
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	if utf8.Valid(data) {
		return string(data), nil
	}

	// Latin-1 never fails; every byte maps to a code point.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

func decodeUTF16(data []byte, bigEndian bool) string {
	u16 := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		if bigEndian {
			u16 = append(u16, uint16(data[i])<<8|uint16(data[i+1]))
		} else {
			u16 = append(u16, uint16(data[i+1])<<8|uint16(data[i]))
		}
	}
	return string(utf16.Decode(u16))
}

// extractDOCX converts a DOCX upload to plain text using pandoc.
func extractDOCX(data []byte) (string, error) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return "", fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	cmd := exec.Command("pandoc", "-f", "docx", "-t", "plain", "--wrap=none")
	cmd.Stdin = bytes.NewReader(data)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("pandoc failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("pandoc execution failed: %w", err)
	}
	return string(output), nil
}

// extractPDF converts a PDF upload to plain text using pdftotext.
func extractPDF(data []byte) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("%w: pdftotext not installed", ErrPDFDependencyMissing)
	}

	cmd := exec.Command("pdftotext", "-layout", "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(data)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("pdftotext failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("pdftotext execution failed: %w", err)
	}
	return string(output), nil
}
