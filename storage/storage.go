package storage

import (
	"io"
)

type StorageSpecificAPI interface {
	GetFullPath(path string) string
	// EnsureLocalFile makes sure path is present on the local disk
	EnsureLocalFile(path string) error
	// UpdateFile publishes the local copy of path, if there is anywhere to publish it to
	UpdateFile(path, mimeType string) error
}

type StorageAPI interface {
	StorageSpecificAPI

	// Save replaces path with everything read from reader. The previous content
	// stays in place if reading fails.
	Save(path string, reader io.Reader) (int64, error)
}
