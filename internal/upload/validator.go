package upload

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxUploadSize is the largest accepted video file (100 MiB).
const MaxUploadSize = 100 * 1024 * 1024

// allowedVideoTypes maps accepted MIME types to their file extensions.
var allowedVideoTypes = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"video/x-matroska": ".mkv",
}

// AllowedExtensions returns the accepted file extensions in display order.
func AllowedExtensions() []string {
	return []string{".mp4", ".mov", ".avi", ".mkv"}
}

// MimeTypeForName infers a MIME type from the file extension. Returns ""
// for unrecognized extensions.
func MimeTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	for mime, e := range allowedVideoTypes {
		if e == ext {
			return mime
		}
	}
	return ""
}

// Candidate describes a file offered for upload before any state is created.
type Candidate struct {
	Name     string
	Size     int64
	MimeType string
}

// ValidationError reports why a candidate file was rejected. Validation
// errors are synchronous; a rejected file never enters the item collection.
type ValidationError struct {
	FileName string
	Reason   string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ValidateFile checks size first, then MIME type, and returns nil if the
// file is acceptable.
func ValidateFile(name string, size int64, mimeType string) error {
	if size > MaxUploadSize {
		return &ValidationError{
			FileName: name,
			Reason: fmt.Sprintf("file size %.1fMB exceeds maximum allowed (100MB)",
				float64(size)/(1024*1024)),
		}
	}

	if _, ok := allowedVideoTypes[mimeType]; !ok {
		return &ValidationError{
			FileName: name,
			Reason: fmt.Sprintf("unsupported file type %q, allowed formats: %s",
				mimeType, strings.Join(AllowedExtensions(), ", ")),
		}
	}

	return nil
}

// Partition splits a batch of candidates into accepted files and rejection
// messages of the form "filename: reason".
func Partition(batch []Candidate) (accepted []Candidate, rejected []string) {
	for _, cand := range batch {
		if err := ValidateFile(cand.Name, cand.Size, cand.MimeType); err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: %s", cand.Name, err.Error()))
			continue
		}
		accepted = append(accepted, cand)
	}
	return accepted, rejected
}
