// Package storage describes a simple K/V blob store.
//
// It is used for the artifact archive: raw build artifacts mirrored to a
// local directory or an S3 bucket, keyed by build id.
package storage

import (
	"context"
	"io"
)

// Store implementations know how to persist blobs under string keys.
//
// Typically this is something file system-like. Implementations are
// assumed to be fairly simple.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
}

// PipeIO copies the reader to the writer with a small fixed buffer
func PipeIO(writer io.Writer, reader io.Reader) (n int64, err error) {
	pipeBuffer := make([]byte, 32*1024)
	return io.CopyBuffer(writer, reader, pipeBuffer)
}
