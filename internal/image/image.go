// Package image converts between image references and bytes, loads uploads,
// and exports thumbnails.
package image

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/manash/clickgenius/pkg/models"
)

var (
	ErrNotImage       = errors.New("file is not an image")
	ErrInvalidDataURI = errors.New("invalid data URI")
	ErrEmptyRef       = errors.New("image reference is empty")
	ErrNoImageData    = errors.New("no image data available")
)

// Image is a decoded image reference.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURI encodes image bytes as a data:<mime>;base64,<payload> reference.
func DataURI(data []byte, mimeType string) models.ImageRef {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return models.ImageRef("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

func ParseDataURI(ref models.ImageRef) (*Image, error) {
	s := string(ref)
	if !strings.HasPrefix(s, "data:") {
		return nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
	}
	mimeType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidDataURI, encoding)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &Image{Data: data, MIMEType: mimeType}, nil
}

// IsImageMIME reports whether a MIME type names an image.
func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// Extension returns the file extension to use for a MIME type, without the dot.
func Extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "png"
}

func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	return http.DetectContentType(data)
}

const DefaultExportName = "thumbnail.png"
