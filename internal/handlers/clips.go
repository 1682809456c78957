package handlers

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"

	"clip-splitter/internal/filesystem"
	"clip-splitter/internal/logging"
	"clip-splitter/internal/mediatypes"

	"github.com/gorilla/mux"
)

// ServeClip serves a clip or poster from a project directory. Browsers play
// it inline; ?download forces a save dialog.
func (h *Handlers) ServeClip(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	project, filename := vars["project"], vars["filename"]

	path, err := h.store.ClipPath(project, filename)
	if err != nil {
		logging.Warn("Rejected clip path %q/%q: %v", project, filename, err)
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	info, err := filesystem.StatWithRetry(path, h.retry)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Error("Failed to stat clip %s: %v", path, err)
			http.Error(w, "Failed to access file", http.StatusInternalServerError)
			return
		}
		logging.Debug("Clip not found: %s", path)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		// Swept between stat and open
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		logging.Error("Failed to open clip %s: %v", path, err)
		http.Error(w, "Failed to access file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	setClipCORSHeaders(w)
	disposition := "inline"
	if r.URL.Query().Has("download") {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": filename}))
	w.Header().Set("Content-Type", mediatypes.ContentTypeFor(filename))
	w.Header().Set("Cache-Control", "private, no-store")

	http.ServeContent(w, r, filename, info.ModTime(), f)
}

// ClipsPreflight answers CORS preflight requests for clip URLs.
func (h *Handlers) ClipsPreflight(w http.ResponseWriter, _ *http.Request) {
	setClipCORSHeaders(w)
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Range")
	w.WriteHeader(http.StatusNoContent)
}

func setClipCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}
