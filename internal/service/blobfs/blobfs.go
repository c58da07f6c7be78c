// Package blobfs хранит содержимое версий в файловой системе (afero).
package blobfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"docmanager/internal/domain"
)

type Store struct {
	fs afero.Fs
}

// New создает хранилище с корнем root на ОС-файловой системе
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

func NewWithFs(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

func cleanKey(key string) (string, error) {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", fmt.Errorf("invalid blob key: %q", key)
		}
	}
	p := path.Clean("/" + key)
	if p == "/" {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return p, nil
}

func (s *Store) Store(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return domain.NewError(domain.KindStorageUnavailable, "failed to create blob directory", err)
	}
	if err := afero.WriteFile(s.fs, p, data, 0o644); err != nil {
		return domain.NewError(domain.KindStorageUnavailable, "failed to write blob", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	p, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &domain.Error{Kind: domain.KindNotFound, Message: "blob not found: " + key}
	}
	if err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "failed to read blob", err)
	}
	return data, nil
}

// Delete удаляет объект; отсутствие объекта не считается ошибкой
func (s *Store) Delete(ctx context.Context, key string) error {
	p, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.NewError(domain.KindStorageUnavailable, "failed to delete blob", err)
	}
	return nil
}
