package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrObjectNotFound is returned by GetObject for a missing key.
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
)

const samplesPrefix = "samples/"

// SampleKey is the object key of an enrollment face crop.
func SampleKey(identityID int64, sampleID string) string {
	return fmt.Sprintf("%s%d/%s.png", samplesPrefix, identityID, sampleID)
}

// cleanKey normalises key and rejects anything that would leave the bucket
// root on a filesystem backend. Both object stores share it so a key valid
// on one is valid on the other.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}

// contentTypeFor keeps an explicit type and otherwise derives one from the
// extensions this service writes.
func contentTypeFor(key, contentType string) string {
	if contentType != "" {
		return contentType
	}
	switch path.Ext(key) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gz":
		return "application/gzip"
	}
	return "application/octet-stream"
}
