package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage persists documents on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./documents"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Store writes the document atomically: bytes go to a temp file that is renamed
// into place. Storing identical content twice is a no-op.
func (s *LocalStorage) Store(ctx context.Context, doc Document) (StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return StoredDocument{}, err
	}
	checksum := Checksum(doc.Data)
	rel := documentPath(doc, checksum)
	stored := StoredDocument{Path: rel, Checksum: checksum, Size: int64(len(doc.Data))}

	target, err := s.resolve(rel)
	if err != nil {
		return StoredDocument{}, err
	}
	if _, err := os.Stat(target); err == nil {
		return stored, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return StoredDocument{}, fmt.Errorf("prepare document directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return StoredDocument{}, fmt.Errorf("create document file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck
	if _, err := tmp.Write(doc.Data); err != nil {
		_ = tmp.Close()
		return StoredDocument{}, fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return StoredDocument{}, fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return StoredDocument{}, fmt.Errorf("publish document: %w", err)
	}
	return stored, nil
}

// Fetch reads a document and verifies it against checksum.
func (s *LocalStorage) Fetch(ctx context.Context, rel, checksum string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("read document: %w", err)
	}
	if err := VerifyChecksum(data, checksum); err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes a stored document.
func (s *LocalStorage) Delete(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// resolve keeps every path inside the base directory.
func (s *LocalStorage) resolve(rel string) (string, error) {
	clean := filepath.Clean("/" + rel)
	target := filepath.Join(s.baseDir, clean)
	base := filepath.Clean(s.baseDir)
	if target != base && !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", fmt.Errorf("document path %q escapes storage root", rel)
	}
	return target, nil
}
