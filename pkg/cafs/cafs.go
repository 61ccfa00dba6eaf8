// Package cafs provides whole-file content-addressed storage.
//
// Every stored file becomes a node named by the blake2b hash of its
// bytes. Identical content across builds resolves to the same node, so
// stored bytes grow with distinct content only. Build trees reference
// nodes through hard links, which is why this package operates on a
// real on-disk directory rather than an afero filesystem (afero has no
// hard link support).
package cafs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	blake2b "github.com/minio/blake2b-simd"

	"github.com/enku/gentoo-build-publisher/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotFound indicates the requested node is not in the store
var ErrNotFound = errors.New("node not found")

// PutRes holds the result from a Put operation
type PutRes struct {
	Written int64 // bytes consumed from the source
	Key     Key   // the content hash of the written node
	Found   bool  // an identical node already existed
}

// Fs implementations provide content-addressed node operations
type Fs interface {
	Put(context.Context, io.Reader) (PutRes, error)
	Get(context.Context, Key) (io.ReadCloser, error)
	Has(context.Context, Key) (bool, error)
	// Link materializes the node at dst as a hard link
	Link(context.Context, Key, string) error
	Delete(context.Context, Key) error
	Keys(context.Context) ([]Key, error)
}

var _ Fs = &defaultFs{}

// New creates a content-addressed node store rooted at dir
func New(dir string, opts ...Option) (Fs, error) {
	f := &defaultFs{
		root: dir,
		l:    zap.NewNop(),
	}
	for _, apply := range opts {
		apply(f)
	}
	for _, sub := range []string{f.tmpDir(), f.objectsDir()} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return nil, err
		}
	}
	return f, nil
}

type defaultFs struct {
	root string
	l    *zap.Logger
}

func (d *defaultFs) tmpDir() string     { return filepath.Join(d.root, "tmp") }
func (d *defaultFs) objectsDir() string { return filepath.Join(d.root, "objects") }

// pathOf fans nodes out over 256 subdirectories keyed by the first hash byte
func (d *defaultFs) pathOf(key Key) string {
	s := key.String()
	return filepath.Join(d.objectsDir(), s[:2], s)
}

func (d *defaultFs) Put(_ context.Context, src io.Reader) (PutRes, error) {
	var empty PutRes

	tmp, err := os.CreateTemp(d.tmpDir(), "put-")
	if err != nil {
		return empty, err
	}
	defer os.Remove(tmp.Name())

	hasher := blake2b.New512()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		tmp.Close()
		return empty, err
	}
	if err = tmp.Close(); err != nil {
		return empty, err
	}

	key := MustNewKey(hasher.Sum(nil))
	target := d.pathOf(key)

	if _, err = os.Stat(target); err == nil {
		d.l.Debug("cafs node already stored", zap.Stringer("key", key))
		return PutRes{Written: written, Key: key, Found: true}, nil
	}
	if err = os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return empty, err
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return empty, err
	}
	// node files are never mutated once in place
	if err = os.Chmod(target, 0444); err != nil {
		return empty, err
	}

	d.l.Debug("cafs node stored",
		zap.Stringer("key", key),
		zap.Int64("bytes", written),
	)
	return PutRes{Written: written, Key: key}, nil
}

func (d *defaultFs) Get(_ context.Context, key Key) (io.ReadCloser, error) {
	f, err := os.Open(d.pathOf(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound.WrapMessage("%s", key)
		}
		return nil, err
	}
	return f, nil
}

func (d *defaultFs) Has(_ context.Context, key Key) (bool, error) {
	_, err := os.Stat(d.pathOf(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *defaultFs) Link(_ context.Context, key Key, dst string) error {
	src := d.pathOf(key)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound.WrapMessage("%s", key)
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	// cross-device destination: fall back to a copy
	return d.copyTo(src, dst)
}

func (d *defaultFs) copyTo(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (d *defaultFs) Delete(_ context.Context, key Key) error {
	if err := os.Remove(d.pathOf(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *defaultFs) Keys(_ context.Context) ([]Key, error) {
	var keys []Key
	err := filepath.Walk(d.objectsDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		key, kerr := KeyFromString(info.Name())
		if kerr != nil {
			return nil // not a node file
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
