package models

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Blob is a named byte source that can be opened any number of times.
type Blob struct {
	Name string
	Size int64
	open func() (io.ReadCloser, error)
}

// ErrNoContent is returned when opening a Blob that was not built by
// BlobFromBytes or BlobFromPath.
var ErrNoContent = errors.New("blob has no content source")

// Open returns a fresh reader over the blob content.
func (b *Blob) Open() (io.ReadCloser, error) {
	if b == nil || b.open == nil {
		return nil, ErrNoContent
	}
	return b.open()
}

// BlobFromBytes wraps in-memory content.
func BlobFromBytes(name string, data []byte) *Blob {
	return &Blob{
		Name: name,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// BlobFromPath wraps a file on disk. The file is opened lazily.
func BlobFromPath(path string) (*Blob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &Blob{
		Name: filepath.Base(path),
		Size: info.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// ProfileRequest is the input of the profiling call.
type ProfileRequest struct {
	File    *Blob
	Address string
	Name    string
}

// UploadData is the final submission of the upload form.
type UploadData struct {
	File           *Blob
	Address        string
	Name           string
	Description    string
	UpdatedColumns string
}
