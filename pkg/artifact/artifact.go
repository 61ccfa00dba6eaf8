// Package artifact validates and stages incoming CI build artifacts.
//
// An artifact is a gzip-compressed tar archive whose root holds the
// four content trees. Extraction lands in a private staging directory
// and produces a manifest of staged tree paths; nothing is visible to
// readers until the staged build is handed to the store.
package artifact

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/artifact/status"
	"github.com/enku/gentoo-build-publisher/pkg/model"
)

// StagedBuild maps each content type to its staged tree, ready to be
// committed to the store
type StagedBuild struct {
	// Dir is the private staging directory holding the trees
	Dir string

	// Trees maps content type to the staged tree path
	Trees map[model.Content]string
}

// Cleanup discards the staging directory
func (s *StagedBuild) Cleanup() error {
	return os.RemoveAll(s.Dir)
}

// Extractor stages artifact byte streams
type Extractor struct {
	stagingRoot string
	l           *zap.Logger
}

// ExtractorOption configures the extractor
type ExtractorOption func(*Extractor)

// ExtractorLogger sets a logger
func ExtractorLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) {
		if l != nil {
			e.l = l
		}
	}
}

// NewExtractor creates an extractor staging into the given directory
func NewExtractor(stagingRoot string, opts ...ExtractorOption) *Extractor {
	e := &Extractor{stagingRoot: stagingRoot, l: zap.NewNop()}
	for _, apply := range opts {
		apply(e)
	}
	return e
}

// Extract decompresses and stages one build artifact.
//
// Fails with ErrCorruptArchive when the stream is not a readable
// tar.gz and with ErrIncompleteArtifact when any of the four content
// trees is absent. On error nothing staged is left behind.
func (e *Extractor) Extract(ctx context.Context, src io.Reader) (*StagedBuild, error) {
	if err := os.MkdirAll(e.stagingRoot, 0755); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(e.stagingRoot, "extract-")
	if err != nil {
		return nil, err
	}
	staged, err := e.extract(ctx, src, dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return staged, nil
}

func (e *Extractor) extract(ctx context.Context, src io.Reader, dir string) (*StagedBuild, error) {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return nil, status.ErrCorruptArchive.Wrap(err)
	}
	defer gz.Close()

	seen := make(map[model.Content]struct{})
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, status.ErrCorruptArchive.Wrap(err)
		}

		name := filepath.Clean(hdr.Name)
		if name == "." {
			continue
		}
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return nil, status.ErrCorruptArchive.WrapMessage("unsafe path %q", hdr.Name)
		}

		top := name
		if i := strings.IndexByte(name, filepath.Separator); i >= 0 {
			top = name[:i]
		}
		content, cerr := model.ParseContent(top)
		if cerr != nil {
			e.l.Warn("ignoring unexpected archive entry", zap.String("name", hdr.Name))
			continue
		}
		seen[content] = struct{}{}

		dst := filepath.Join(dir, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0755); err != nil {
				return nil, err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return nil, err
			}
			if err := os.Symlink(hdr.Linkname, dst); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return nil, err
			}
			f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return nil, err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return nil, status.ErrCorruptArchive.Wrap(err)
			}
			if err := f.Close(); err != nil {
				return nil, err
			}
		default:
			e.l.Warn("skipping unsupported tar entry",
				zap.String("name", hdr.Name),
				zap.Uint8("type", hdr.Typeflag),
			)
		}
	}

	staged := &StagedBuild{Dir: dir, Trees: make(map[model.Content]string)}
	for _, content := range model.Contents() {
		if _, ok := seen[content]; !ok {
			return nil, status.ErrIncompleteArtifact.WrapMessage("missing %s", content)
		}
		staged.Trees[content] = filepath.Join(dir, string(content))
	}
	return staged, nil
}
