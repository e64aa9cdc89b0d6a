package api

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

// The accept and reject links are opened from an email client, so they
// answer with a small page rather than JSON.
var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:sans-serif;text-align:center;padding:40px;">
  <h2 style="color:{{if .OK}}#4CAF50{{else}}#f44336{{end}};">{{.Title}}</h2>
  <p>{{.Message}}</p>
</body>
</html>`))

type pageData struct {
	Title   string
	Message string
	OK      bool
}

func renderPage(w http.ResponseWriter, logger *zap.Logger, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resultPage.Execute(w, data); err != nil {
		logger.Error("failed to render page", zap.Error(err))
	}
}
