package mediatypes

import (
	"mime"
	"path/filepath"
	"strings"
)

// FileType represents the kind of artifact a file holds.
type FileType string

const (
	// FileTypeVideo represents a rendered clip.
	FileTypeVideo FileType = "video"
	// FileTypeImage represents a poster frame.
	FileTypeImage FileType = "image"
	// FileTypeOther represents anything the server does not produce.
	FileTypeOther FileType = "other"
)

const (
	// ClipExtension is the extension of every rendered clip.
	ClipExtension = ".mp4"
	// PosterExtension is the extension of poster frames written beside clips.
	PosterExtension = ".jpg"
)

// DefaultMimeType is returned for extensions that are not recognized.
const DefaultMimeType = "application/octet-stream"

// MimeTypes maps the extensions found in project directories to their
// MIME types.
var MimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// GetFileType returns the FileType for a lowercase extension with its
// leading dot.
func GetFileType(ext string) FileType {
	switch {
	case strings.HasPrefix(MimeTypes[ext], "video/"):
		return FileTypeVideo
	case strings.HasPrefix(MimeTypes[ext], "image/"):
		return FileTypeImage
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a lowercase extension with its
// leading dot, or DefaultMimeType.
func GetMimeType(ext string) string {
	if mt, ok := MimeTypes[ext]; ok {
		return mt
	}
	return DefaultMimeType
}

// ContentTypeFor returns the MIME type for a file name, ignoring the case
// of its extension.
func ContentTypeFor(name string) string {
	return GetMimeType(strings.ToLower(filepath.Ext(name)))
}

// IsVideoContentType reports whether a part's declared Content-Type is a
// video/* type. Parameters such as codecs are ignored.
func IsVideoContentType(ct string) bool {
	ct = strings.TrimSpace(ct)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	return strings.HasPrefix(strings.ToLower(ct), "video/")
}
