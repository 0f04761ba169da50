// Package export renders a document's HTML content to downloadable
// TXT, DOCX, and PDF files.
package export

import "errors"

// Format is the export output format.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

// MaxContentLength bounds the HTML content accepted for export.
const MaxContentLength = 1_000_000

// Request contains parameters for an export operation. Content is the
// document body as editor HTML.
type Request struct {
	Title   string
	Content string
	Format  Format
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentTooLarge indicates the document exceeds MaxContentLength.
	ErrContentTooLarge = errors.New("export content too large")
	// ErrUnsupportedFormat indicates an unknown export format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
