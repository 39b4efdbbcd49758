package blob

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pctasks/app/objects"

	"github.com/pkg/errors"
)

// LocalStore keeps blobs as files below a root directory.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0770); err != nil {
		return nil, errors.Wrapf(err, "create blob root %s", abs)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) resolve(path string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", errors.Errorf("blob path %s escapes the store root", path)
	}
	return full, nil
}

func (s *LocalStore) Put(ctx context.Context, path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0770); err != nil {
		return errors.Wrapf(err, "put %s", path)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0660); err != nil {
		return errors.Wrapf(err, "put %s", path)
	}
	return errors.Wrapf(os.Rename(tmp, full), "put %s", path)
}

func (s *LocalStore) Get(ctx context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, objects.ErrNotFound
	}
	return data, errors.Wrapf(err, "get %s", path)
}

func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(full, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			paths = append(paths, rel)
		}
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

func (s *LocalStore) URI(path string) string {
	if path == "" {
		return "file://" + filepath.ToSlash(s.root)
	}
	return "file://" + filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(path)))
}
