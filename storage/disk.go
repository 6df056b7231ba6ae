package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

type DiskStorage struct {
	// BasePath is a directory that is writable by the current process
	BasePath  string
	dirs      map[string]bool
	dirsMutex sync.Mutex
}

func NewDiskStorage(basePath string) *DiskStorage {
	return &DiskStorage{
		BasePath: basePath,
		dirs:     make(map[string]bool, 1),
	}
}

func (s *DiskStorage) createDir(dir string) error {
	s.dirsMutex.Lock()
	defer s.dirsMutex.Unlock()

	if ok := s.dirs[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	s.dirs[dir] = true
	return nil
}

func (s *DiskStorage) GetFullPath(path string) string {
	return filepath.Join(s.BasePath, path)
}

// GetSize returns -1 when path does not exist
func (s *DiskStorage) GetSize(path string) int64 {
	fi, err := os.Stat(s.GetFullPath(path))
	if err != nil {
		return -1
	}
	return fi.Size()
}

func (s *DiskStorage) Save(path string, reader io.Reader) (int64, error) {
	fileName := s.GetFullPath(path)
	dir := filepath.Dir(fileName)
	if err := s.createDir(dir); err != nil {
		return 0, err
	}
	// Written next to the target and renamed, so readers never see a partial file.
	file, err := os.CreateTemp(dir, "."+filepath.Base(fileName)+".*")
	if err != nil {
		return 0, err
	}
	result, err := io.Copy(file, reader)
	if err == nil {
		err = file.Chmod(0o644)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(file.Name(), fileName)
	}
	if err != nil {
		_ = os.Remove(file.Name())
		return result, err
	}
	return result, nil
}

func (s *DiskStorage) EnsureLocalFile(path string) error {
	if s.GetSize(path) < 0 {
		return fmt.Errorf("%s: %w", s.GetFullPath(path), fs.ErrNotExist)
	}
	return nil
}

func (s *DiskStorage) UpdateFile(path, mimeType string) error {
	return nil
}

// IsNotExist reports whether err means the file is missing locally and remotely.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
