package mediatype

import (
	"mime"
	"strings"
)

// MimeTypes maps lowercase extensions (without the dot) to MIME types for
// the formats the pipeline reads or writes.
var MimeTypes = map[string]string{
	// Images
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"apng": "image/apng",

	// Videos
	"mp4":  "video/mp4",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"webm": "video/webm",
	"m4v":  "video/x-m4v",
	"mpeg": "video/mpeg",

	// Audio
	"m4a":  "audio/mp4",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
	"wav":  "audio/wav",
	"flac": "audio/flac",
}

// preferredExt resolves MIME types that several extensions share.
var preferredExt = map[string]string{
	"image/jpeg": "jpg",
	"image/tiff": "tiff",
	"audio/mp4":  "m4a",
	"video/mpeg": "mpeg",
}

// MimeType returns the MIME type for ext ("png" or ".png"), or
// application/octet-stream when it is not recognized.
func MimeType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if m, ok := MimeTypes[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// ExtensionFor returns the extension (without the dot) for a Content-Type
// header value, ignoring parameters. It returns "" when unknown.
func ExtensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	mt = strings.ToLower(mt)
	if ext, ok := preferredExt[mt]; ok {
		return ext
	}
	for ext, m := range MimeTypes {
		if m == mt {
			return ext
		}
	}
	return ""
}

// KnownExtension reports whether ext has an entry in MimeTypes.
func KnownExtension(ext string) bool {
	_, ok := MimeTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}
