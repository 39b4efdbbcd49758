package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"pctasks/app/config"
	"pctasks/app/objects"
)

// Store is object storage for workflow documents, task input/output/status
// blobs, task logs and uploaded code bundles. Paths are slash separated and
// relative to the store root.
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	// Get returns objects.ErrNotFound for a missing path.
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	URI(path string) string
}

func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Kind {
	case "local", "":
		return NewLocalStore(cfg.Root)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported blob store kind '%s'", cfg.Kind)
	}
}

// UploadCode stores a code bundle under a path derived from its content so
// identical bundles are uploaded once.
func UploadCode(ctx context.Context, s Store, name string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	path := objects.CodePath(hex.EncodeToString(sum[:]), name)
	exists, err := s.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := s.Put(ctx, path, data); err != nil {
			return "", err
		}
	}
	return s.URI(path), nil
}

// PathFromURI strips the store's URI prefix. Plain paths are returned as is.
func PathFromURI(s Store, uri string) string {
	prefix := s.URI("")
	if strings.HasPrefix(uri, prefix) {
		return strings.TrimPrefix(strings.TrimPrefix(uri, prefix), "/")
	}
	return uri
}
