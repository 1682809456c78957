package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"clip-splitter/internal/logging"
)

// StaticUI serves the built web client from dir. Paths that do not name a
// file fall back to index.html so client-side routes survive a reload.
func StaticUI(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		if err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := os.Open(index)
		if err != nil {
			logging.Error("Failed to open %s: %v", index, err)
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		stat, err := f.Stat()
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "index.html", stat.ModTime(), f)
	})
}
