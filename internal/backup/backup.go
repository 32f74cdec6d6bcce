// Package backup writes exported collections to a durable location.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sink stores backup objects under slash-separated keys.
type Sink interface {
	Driver() string
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
}

// Options selects and configures a sink.
type Options struct {
	Driver string
	Dir    string
	S3     S3Config
}

// Open returns the sink named by opts.Driver ("fs" when empty).
func Open(ctx context.Context, opts Options) (Sink, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "fs":
		return NewFS(opts.Dir)
	case "s3":
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown backup driver %q", opts.Driver)
	}
}

// FS writes backups below a root directory.
type FS struct {
	root string
}

// NewFS creates root if needed.
func NewFS(root string) (*FS, error) {
	if root == "" {
		root = "backups"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) Driver() string { return "fs" }

// Put writes to a temporary file and renames it into place.
func (s *FS) Put(_ context.Context, key string, r io.Reader, _ string) error {
	clean, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	path := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// sanitizeKey keeps keys relative and inside the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}
