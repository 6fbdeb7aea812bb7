package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Logical buckets. A blob reference is "<bucket>/<name>".
const (
	BucketGenerated       = "generated_images"
	BucketProfilePictures = "profile_pics"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidRef = errors.New("invalid blob reference")
)

type BlobStore interface {
	Save(ctx context.Context, bucket, name string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// Ref joins bucket and name into a blob reference.
func Ref(bucket, name string) string {
	return bucket + "/" + name
}

// SplitRef validates ref and returns its bucket and name.
func SplitRef(ref string) (bucket, name string, err error) {
	bucket, name, ok := strings.Cut(ref, "/")
	if !ok || name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	switch bucket {
	case BucketGenerated, BucketProfilePictures:
		return bucket, name, nil
	}
	return "", "", fmt.Errorf("%w: unknown bucket %q", ErrInvalidRef, bucket)
}

// DiskStorage keeps blobs under uploadDir/<bucket>/<name>.
type DiskStorage struct {
	uploadDir string
}

func NewDiskStorage(uploadDir string) (*DiskStorage, error) {
	for _, bucket := range []string{BucketGenerated, BucketProfilePictures} {
		if err := os.MkdirAll(filepath.Join(uploadDir, bucket), 0755); err != nil {
			return nil, err
		}
	}
	return &DiskStorage{uploadDir: uploadDir}, nil
}

func (s *DiskStorage) Save(_ context.Context, bucket, name string, r io.Reader) (string, error) {
	ref := Ref(bucket, name)
	if _, _, err := SplitRef(ref); err != nil {
		return "", err
	}
	if err := s.saveFile(r, s.filePath(bucket, name)); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *DiskStorage) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	bucket, name, err := SplitRef(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.filePath(bucket, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *DiskStorage) Delete(_ context.Context, ref string) error {
	bucket, name, err := SplitRef(ref)
	if err != nil {
		return err
	}
	err = os.Remove(s.filePath(bucket, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// saveFile writes through a temp file so readers never see a partial blob.
func (s *DiskStorage) saveFile(file io.Reader, dst string) error {
	out, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		slog.Error("Failed to create file", "path", dst, "error", err)
		return err
	}
	defer os.Remove(out.Name())

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		slog.Error("Failed to save file", "path", dst, "error", err)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(out.Name(), dst)
}

func (s *DiskStorage) filePath(bucket, name string) string {
	return filepath.Join(s.uploadDir, bucket, path.Base(name))
}
