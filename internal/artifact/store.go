package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("artifact not found")

// FileStore keeps proof bytes under a root directory, addressed by storage
// path.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FileStore{root: abs}, nil
}

func (s *FileStore) Exists(storagePath string) (bool, error) {
	full, err := s.resolve(storagePath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (s *FileStore) Open(storagePath string) (io.ReadCloser, error) {
	full, err := s.resolve(storagePath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return file, err
}

func (s *FileStore) Put(storagePath string, body io.Reader) error {
	full, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return err
	}
	file, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Delete removes the bytes. A missing file counts as deleted.
func (s *FileStore) Delete(storagePath string) error {
	full, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) resolve(storagePath string) (string, error) {
	ref, err := ParseRef(storagePath)
	if err != nil {
		return "", err
	}
	if !ref.IsStoragePath() {
		return "", ErrBadRef
	}
	full := filepath.Join(s.root, filepath.FromSlash(ref.Value))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", ErrBadRef
	}
	return full, nil
}
