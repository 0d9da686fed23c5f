package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/huangang/erpsettings/internal/config"
)

// ErrNotExist is returned by Get when no object lives at the path.
var ErrNotExist = errors.New("storage: object does not exist")

// Store persists small binary objects under slash-separated paths such as
// "assets/img/logo.png". Put always overwrites.
type Store interface {
	Put(ctx context.Context, objectPath string, data []byte, contentType string) error
	Get(ctx context.Context, objectPath string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// New builds the store selected by cfg.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.Root), nil
	case "minio":
		return NewMinioStore(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// cleanPath normalizes objectPath and rejects attempts to leave the root.
func cleanPath(objectPath string) (string, error) {
	p := path.Clean("/" + strings.ReplaceAll(objectPath, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return p, nil
}

func getFullPath(basePath, objectName string) string {
	if basePath == "" {
		return objectName
	}
	return strings.TrimSuffix(basePath, "/") + "/" + objectName
}
