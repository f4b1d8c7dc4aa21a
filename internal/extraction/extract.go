// Package extraction turns uploaded files into plain text for ingestion.
package extraction

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFileType indicates a file extension with no extractor.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrEmptyExtraction indicates the file produced no usable text.
	ErrEmptyExtraction = errors.New("no text extracted")

	// ErrInvalidEncoding indicates the file is not valid UTF-8.
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")
)

// supportedExtensions lists extensions with an extractor, lowercase with
// leading dot.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Supported reports whether files with the given name can be extracted.
func Supported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Extensions returns the supported extensions, for error messages and
// upload validation.
func Extensions() []string {
	return []string{".txt", ".md"}
}

// ExtractText reads a file and returns its plain-text content.
func ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFileType, ext, strings.Join(Extensions(), ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrInvalidEncoding, path)
	}

	text := normalizeNewlines(string(data))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyExtraction, path)
	}
	return text, nil
}

// normalizeNewlines converts CRLF and lone CR line endings to LF so the
// chunker's separators match regardless of upload origin.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
