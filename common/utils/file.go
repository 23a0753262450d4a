package utils

import (
	"io"
	"os"

	"github.com/go-errors/errors"
)

// OpenForRead opens a file for reading only.
func OpenForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "open for read", 0)
	}
	return f, nil
}

// CopyAllBytes copies src to dst until EOF.
func CopyAllBytes(dst io.Writer, src io.Reader) error {
	if _, err := io.Copy(dst, src); err != nil {
		return errors.WrapPrefix(err, "copy file content", 0)
	}
	return nil
}
