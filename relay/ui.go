package relay

import (
	_ "embed"
	"net/http"
)

//go:embed static/index.html
var indexHTML []byte

func serveUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(indexHTML)
}
