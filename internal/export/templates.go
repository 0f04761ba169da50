package export

import (
	"bytes"
	"html/template"
)

// TemplateData holds data for document template rendering.
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
}

var documentTemplate = template.Must(template.New("document").Parse(documentTemplateText))

// RenderDocumentHTML renders the printable document page fed to the
// PDF and DOCX converters.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    p { margin: 0 0 1em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div>{{.ContentHTML}}</div>
</body>
</html>`
