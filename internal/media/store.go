package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrMissingExtension is returned for uploads whose name carries no extension.
	ErrMissingExtension = errors.New("file must have an extension")
	// ErrForeignRef is returned for references this store did not hand out.
	ErrForeignRef = errors.New("reference does not belong to this store")
)

// Store persists uploaded payloads and hands back a stable reference.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

// DiskStore writes uploads under a directory and references them by URL.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates dir when needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory uploads are written to.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Save copies r to a fresh file named after a random id plus the extension of
// filename and returns its reference.
func (s *DiskStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" || ext == "." {
		return "", ErrMissingExtension
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	out, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

// Delete removes the file behind ref. Deleting a missing file is not an error.
func (s *DiskStore) Delete(ctx context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, s.baseURL+"/")
	if !ok || name == "" || name != filepath.Base(name) {
		return ErrForeignRef
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
