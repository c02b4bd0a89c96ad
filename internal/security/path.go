package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrLeadingHyphen = errors.New("filename cannot start with hyphen")
	ErrEmptyPath     = errors.New("path cannot be empty")

	reservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}
)

// ValidateExportPath checks a path an exported thumbnail is written to. Only
// paths relative to the working directory are accepted.
func ValidateExportPath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}
	if hasDotDot(path) {
		return ErrPathTraversal
	}
	return validateBase(filepath.Base(filepath.Clean(path)))
}

// ValidateObjectKey checks an object storage key built from user input.
func ValidateObjectKey(key string) error {
	if key == "" {
		return ErrEmptyPath
	}
	if strings.HasPrefix(key, "/") {
		return ErrAbsolutePath
	}
	if hasDotDot(key) {
		return ErrPathTraversal
	}
	return nil
}

func hasDotDot(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func validateBase(base string) error {
	nameWithoutExt := strings.TrimSuffix(strings.ToLower(base), filepath.Ext(base))
	if reservedNames[nameWithoutExt] {
		return fmt.Errorf("%w: %s", ErrReservedName, base)
	}
	if strings.HasPrefix(base, "-") {
		return ErrLeadingHyphen
	}
	return nil
}

// SanitizeFilename turns a project name into something safe to use as a
// file name component.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", " ", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	sanitized := replacer.Replace(strings.TrimSpace(name))
	sanitized = strings.TrimLeft(sanitized, ".-")
	sanitized = strings.TrimRight(sanitized, ". -")

	nameWithoutExt := strings.TrimSuffix(strings.ToLower(sanitized), filepath.Ext(sanitized))
	if reservedNames[nameWithoutExt] {
		sanitized += "_"
	}

	if sanitized == "" {
		sanitized = "thumbnail"
	}
	return sanitized
}
