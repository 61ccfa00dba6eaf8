package artifact

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enku/gentoo-build-publisher/pkg/artifact/status"
	"github.com/enku/gentoo-build-publisher/pkg/errors"
	"github.com/enku/gentoo-build-publisher/pkg/model"
)

// makeArtifact builds a tar.gz with one file per given tree
func makeArtifact(t *testing.T, trees map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for dir, file := range trees {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     dir + "/",
			Typeflag: tar.TypeDir,
			Mode:     0755,
		}))
		if file == "" {
			continue
		}
		content := []byte("content of " + file)
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     dir + "/" + file,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func completeArtifact(t *testing.T) []byte {
	return makeArtifact(t, map[string]string{
		"binpkgs":         "Packages",
		"etc-portage":     "make.conf",
		"repos":           "profiles",
		"var-lib-portage": "world",
	})
}

func TestExtract(t *testing.T) {
	e := NewExtractor(t.TempDir())
	staged, err := e.Extract(context.Background(), bytes.NewReader(completeArtifact(t)))
	require.NoError(t, err)
	defer staged.Cleanup()

	require.Len(t, staged.Trees, 4)
	b, err := os.ReadFile(filepath.Join(staged.Trees[model.ContentBinPkgs], "Packages"))
	require.NoError(t, err)
	assert.Equal(t, "content of Packages", string(b))
}

func TestExtractIncomplete(t *testing.T) {
	data := makeArtifact(t, map[string]string{
		"binpkgs":     "Packages",
		"etc-portage": "make.conf",
		"repos":       "profiles",
	})
	e := NewExtractor(t.TempDir())
	_, err := e.Extract(context.Background(), bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrIncompleteArtifact))
}

func TestExtractCorrupt(t *testing.T) {
	e := NewExtractor(t.TempDir())
	_, err := e.Extract(context.Background(), bytes.NewReader([]byte("not a tarball")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorruptArchive))
}

func TestExtractTruncated(t *testing.T) {
	data := completeArtifact(t)
	e := NewExtractor(t.TempDir())
	_, err := e.Extract(context.Background(), bytes.NewReader(data[:len(data)/2]))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorruptArchive))
}

func TestExtractUnsafePath(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("evil")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../evil",
		Typeflag: tar.TypeReg,
		Mode:     0644,
		Size:     int64(len(content)),
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	e := NewExtractor(t.TempDir())
	_, err = e.Extract(context.Background(), &buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorruptArchive))
}

func TestExtractIgnoresExtraEntries(t *testing.T) {
	data := makeArtifact(t, map[string]string{
		"binpkgs":         "Packages",
		"etc-portage":     "make.conf",
		"repos":           "profiles",
		"var-lib-portage": "world",
		"unknown-dir":     "stray",
	})
	e := NewExtractor(t.TempDir())
	staged, err := e.Extract(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	defer staged.Cleanup()
	assert.Len(t, staged.Trees, 4)
}

func TestCleanupRemovesStaging(t *testing.T) {
	e := NewExtractor(t.TempDir())
	staged, err := e.Extract(context.Background(), bytes.NewReader(completeArtifact(t)))
	require.NoError(t, err)

	require.NoError(t, staged.Cleanup())
	_, err = os.Stat(staged.Dir)
	assert.True(t, os.IsNotExist(err))
}
