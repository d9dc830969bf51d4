// Package storage holds the document store used for certificates and reports,
// plus signed download tokens.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const checksumPrefix = "blake2b:"

var (
	// ErrChecksumMismatch means stored bytes no longer match the recorded checksum.
	ErrChecksumMismatch = errors.New("document checksum mismatch")
	// ErrDocumentNotFound means nothing is stored at the path.
	ErrDocumentNotFound = errors.New("document not found")
)

// Document is a file handed to the store.
type Document struct {
	Category    string
	Name        string
	ContentType string
	Data        []byte
}

// StoredDocument locates a persisted document.
type StoredDocument struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// DocumentStore persists immutable documents under content-addressed paths.
type DocumentStore interface {
	Store(ctx context.Context, doc Document) (StoredDocument, error)
	Fetch(ctx context.Context, path, checksum string) ([]byte, error)
	// Delete removes a stored document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
}

// Checksum returns the BLAKE2b-256 digest of data in "blake2b:<hex>" form.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return checksumPrefix + hex.EncodeToString(sum[:])
}

// VerifyChecksum compares data against an expected checksum.
func VerifyChecksum(data []byte, expected string) error {
	if expected == "" {
		return nil
	}
	if actual := Checksum(data); actual != expected {
		return fmt.Errorf("%w: expected %s got %s", ErrChecksumMismatch, expected, actual)
	}
	return nil
}

// documentPath derives "<category>/<aa>/<digest><ext>" so identical content
// always lands on the same key.
func documentPath(doc Document, checksum string) string {
	digest := strings.TrimPrefix(checksum, checksumPrefix)
	category := strings.Trim(doc.Category, "/")
	if category == "" {
		category = "documents"
	}
	return path.Join(category, digest[:2], digest+extensionFor(doc))
}

func extensionFor(doc Document) string {
	if ext := path.Ext(doc.Name); ext != "" {
		return strings.ToLower(ext)
	}
	if doc.ContentType != "" {
		if exts, err := mime.ExtensionsByType(doc.ContentType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ".bin"
}
