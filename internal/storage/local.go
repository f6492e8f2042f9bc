package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
)

// BlobStore is the storage contract the pipeline depends on. Handles are
// opaque to callers; the core never inspects them.
type BlobStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Load(ctx context.Context, handle string) ([]byte, error)
}

type localStore struct {
	log *logger.Logger
	dir string
}

// NewLocalStore writes blobs under dir, creating it if needed.
func NewLocalStore(log *logger.Logger, dir string) (BlobStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &localStore{
		log: log.With("service", "LocalStore"),
		dir: dir,
	}, nil
}

func (s *localStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return "", fmt.Errorf("blob name required")
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return path, nil
}

func (s *localStore) Load(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(handle)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}
