package handlers

import (
	"embed"
	"html/template"
	"time"
)

const reportTemplate = "admin_report.html"

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded HTML views for gin's SetHTMLTemplate.
func Templates() *template.Template {
	funcs := template.FuncMap{
		"ts": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 UTC") },
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
