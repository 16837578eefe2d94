package http

import (
	"bytes"
	"html/template"
	"net/http"
)

type pageLevel string

const (
	pageSuccess pageLevel = "success"
	pageWarning pageLevel = "warning"
	pageError   pageLevel = "error"
)

type pageData struct {
	Level   pageLevel
	Title   string
	Message string
}

var decisionPage = template.Must(template.New("decision").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 32rem; margin: 4rem auto; padding: 0 1rem; }
.box { border-radius: 6px; padding: 1.25rem 1.5rem; }
.success { background: #e7f6ec; border: 1px solid #3c9d5d; }
.warning { background: #fff6e0; border: 1px solid #c99a1a; }
.error { background: #fdecec; border: 1px solid #c23b3b; }
</style>
</head>
<body>
<div class="box {{.Level}}">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</div>
</body>
</html>
`))

// renderPage writes a small human readable confirmation page.
func renderPage(w http.ResponseWriter, status int, data pageData) error {
	var buf bytes.Buffer
	if err := decisionPage.Execute(&buf, data); err != nil {
		http.Error(w, data.Title, http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
