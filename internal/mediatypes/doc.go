// Package mediatypes names the file types the clip splitter accepts and
// produces.
//
// It has no dependencies on other internal packages so that segment
// planning, poster generation and the HTTP handlers can share the same
// extensions and MIME types without import cycles.
//
// Uploads are accepted when the multipart part declares a video/* type:
//
//	mediatypes.IsVideoContentType(part.Header.Get("Content-Type"))
//
// Served artifacts are typed by extension:
//
//	mediatypes.ContentTypeFor("part1.mp4") // "video/mp4"
//	mediatypes.ContentTypeFor("part1.jpg") // "image/jpeg"
package mediatypes
