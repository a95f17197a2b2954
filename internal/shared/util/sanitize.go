package util

import (
	"errors"
	"path"
	"strings"
)

// ErrInvalidFileName is returned for names that cannot be written locally.
var ErrInvalidFileName = errors.New("invalid file name")

// MediaFileName returns a filesystem-safe base name for an object key.
// Separators inside the base are flattened; traversal names are rejected.
func MediaFileName(key string) (string, error) {
	s := strings.TrimSpace(path.Base(strings.ReplaceAll(key, "\\", "/")))
	if s == "" || s == "." || s == "/" || strings.Contains(s, "..") {
		return "", ErrInvalidFileName
	}
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == ':' {
			return '_'
		}
		return r
	}, s)
	return s, nil
}
