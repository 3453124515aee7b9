// Package storage names and types the files written by the upload endpoints.
// Backends live in the local and gcs subpackages.
package storage

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PrefixDecrypted = "decrypted"
	PrefixUpload    = "upload"

	ExtText    = "txt"
	DefaultExt = "mp4"
)

var extensions = map[string]string{
	"video/mp4":  "mp4",
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// ObjectName returns "<prefix>_<unix seconds>_<uuid>.<ext>". The UUID keeps
// names unique when requests land in the same second.
func ObjectName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s.%s", prefix, now.Unix(), uuid.NewString(), ext)
}

// ExtensionFor maps a declared content type to a file extension, defaulting
// to mp4. Parameters such as "; charset=" are ignored.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if ext, ok := extensions[mediaType]; ok {
		return ext
	}
	return DefaultExt
}
