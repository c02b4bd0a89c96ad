package image

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/manash/clickgenius/pkg/models"
)

type Upload struct {
	Name string
	Ref  models.ImageRef
}

// LoadUpload reads a local file into a data URI reference. Files whose type
// is not image/* return ErrNotImage.
func LoadUpload(path string) (*Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat upload: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotImage, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	mimeType := detectMIME(path, data)
	if !IsImageMIME(mimeType) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotImage, filepath.Base(path), mimeType)
	}

	return &Upload{
		Name: filepath.Base(path),
		Ref:  DataURI(data, mimeType),
	}, nil
}
