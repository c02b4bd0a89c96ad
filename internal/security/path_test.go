package security

import (
	"errors"
	"testing"
)

func TestValidateExportPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"simple filename", "thumbnail.png", nil},
		{"subdirectory", "exports/thumbnail.png", nil},
		{"double dot inside name", "thumb..final.png", nil},
		{"empty", "", ErrEmptyPath},
		{"parent dir", "../thumbnail.png", ErrPathTraversal},
		{"traversal in middle", "exports/../../etc/passwd", ErrPathTraversal},
		{"absolute", "/etc/passwd", ErrAbsolutePath},
		{"reserved CON", "CON.png", ErrReservedName},
		{"reserved lpt1", "out/lpt1.jpg", ErrReservedName},
		{"leading hyphen", "-rf.png", ErrLeadingHyphen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExportPath(tt.path)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateExportPath(%q) error = %v, wantErr nil", tt.path, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateExportPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr error
	}{
		{"thumbnails/abc.png", nil},
		{"", ErrEmptyPath},
		{"/thumbnails/abc.png", ErrAbsolutePath},
		{"thumbnails/../secret", ErrPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateObjectKey(%q) error = %v", tt.key, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateObjectKey(%q) error = %v, want %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"thumbnail.png", "thumbnail.png"},
		{"My Video Thumb", "My-Video-Thumb"},
		{"foo/bar", "foo-bar"},
		{"foo\\bar", "foo-bar"},
		{"..hidden", "hidden"},
		{"--flag", "flag"},
		{"name...", "name"},
		{"what?<is>|this*", "whatisthis"},
		{"con", "con_"},
		{"", "thumbnail"},
		{"  ", "thumbnail"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
