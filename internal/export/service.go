package export

import (
	"fmt"
	"html/template"
)

// Service renders documents into downloadable files.
type Service struct{}

// NewService creates an export service.
func NewService() *Service {
	return &Service{}
}

// Export generates a file in the requested format from the document's
// title and HTML content.
func (s *Service) Export(req Request) (*Result, error) {
	if len(req.Content) > MaxContentLength {
		return nil, ErrContentTooLarge
	}

	switch req.Format {
	case FormatTXT:
		return exportTXT(req.Title, req.Content)
	case FormatDOCX, FormatPDF:
		html, err := RenderDocumentHTML(TemplateData{
			Title:       req.Title,
			ContentHTML: template.HTML(req.Content),
		})
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		if req.Format == FormatDOCX {
			return exportDOCX(html, req.Title)
		}
		return exportPDF(html, req.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
