package report

import (
	"bytes"
	"fmt"
	"html/template"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"text": Text,
}).Parse(`<!DOCTYPE html>
<html lang="ro">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: "DejaVu Sans", Arial, sans-serif; font-size: 10px; margin: 0; }
h1 { font-size: 16px; margin: 0 0 4px 0; }
h2 { font-size: 13px; margin: 18px 0 6px 0; }
.meta { color: #555; margin-bottom: 10px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 3px 5px; text-align: left; }
th { background: #d9e1f2; }
tr.total td { font-weight: bold; background: #f2f2f2; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{if .Subtitle}}{{.Subtitle}} &middot; {{end}}{{.GeneratedAt.Format "2006-01-02 15:04"}}</div>
{{range .Tables}}
{{if .Title}}<h2>{{.Title}}</h2>{{end}}
<table>
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{text .}}</td>{{end}}</tr>
{{end}}{{if .Totals}}<tr class="total">{{range .Totals}}<td>{{text .}}</td>{{end}}</tr>{{end}}
</tbody>
</table>
{{end}}
</body>
</html>`))

// HTML renders the document as a standalone page, the input for PDF printing.
func HTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render report html: %w", err)
	}
	return buf.String(), nil
}
