package publisher

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	artifactstatus "github.com/enku/gentoo-build-publisher/pkg/artifact/status"
	"github.com/enku/gentoo-build-publisher/pkg/errors"
	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/publisher/status"
	"github.com/enku/gentoo-build-publisher/pkg/records"
	"github.com/enku/gentoo-build-publisher/pkg/records/memory"
	"github.com/enku/gentoo-build-publisher/pkg/storage/localfs"
	"github.com/enku/gentoo-build-publisher/pkg/store"
	"github.com/enku/gentoo-build-publisher/pkg/store/bdgr"
	storestatus "github.com/enku/gentoo-build-publisher/pkg/store/status"
	"github.com/enku/gentoo-build-publisher/pkg/worker"
)

// packagesIndex renders a portage Packages index with one entry per cpv
func packagesIndex(cpvs ...string) string {
	var b strings.Builder
	b.WriteString("ARCH: amd64\nPACKAGES: ")
	fmt.Fprintf(&b, "%d\n\n", len(cpvs))
	for i, cpv := range cpvs {
		fmt.Fprintf(&b, "BUILD_ID: %d\n", i+1)
		fmt.Fprintf(&b, "BUILD_TIME: %d\n", 1696000000+i)
		fmt.Fprintf(&b, "CPV: %s\n", cpv)
		fmt.Fprintf(&b, "PATH: %s-%d.gpkg.tar\n", cpv, i+1)
		b.WriteString("REPO: gentoo\nSIZE: 1024\n\n")
	}
	return b.String()
}

// buildArtifact packs a complete artifact carrying the given Packages
// index
func buildArtifact(t *testing.T, index string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	writeFile := func(name, data string) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(data)),
		}))
		_, err := tw.Write([]byte(data))
		require.NoError(t, err)
	}
	for _, content := range model.Contents() {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: string(content) + "/", Typeflag: tar.TypeDir, Mode: 0755,
		}))
	}
	writeFile("binpkgs/Packages", index)
	writeFile("repos/profiles", "gentoo\n")
	writeFile("etc-portage/make.conf", "USE=\"-doc\"\n")
	writeFile("var-lib-portage/world", "app-foo/foo\n")

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func serve(t *testing.T, data []byte) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func testPublisher(t *testing.T, opts ...Option) (*Publisher, *store.Store, records.RecordDB) {
	t.Helper()
	root := t.TempDir()
	s, err := store.New(root, store.MetaBackend(bdgr.New(filepath.Join(root, "meta"))))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	db := memory.New()
	return New(s, db, opts...), s, db
}

func pull(t *testing.T, p *Publisher, build model.Build, cpvs ...string) {
	t.Helper()
	url := serve(t, buildArtifact(t, packagesIndex(cpvs...)))
	require.NoError(t, p.Pull(context.Background(), build, url))
}

func TestPull(t *testing.T) {
	p, s, db := testPublisher(t)
	build := model.NewBuild("base", 100)

	pull(t, p, build, "app-foo/foo-1.0")

	assert.True(t, s.Pulled(build))

	rec, err := db.Get(build)
	require.NoError(t, err)
	assert.True(t, rec.Pulled())
	assert.False(t, rec.Submitted.IsZero())

	meta, err := s.GetMetadata(build)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Packages.Total)
}

func TestPullIdempotent(t *testing.T) {
	p, s, _ := testPublisher(t)
	build := model.NewBuild("base", 100)

	pull(t, p, build, "app-foo/foo-1.0")
	before, err := s.Stats()
	require.NoError(t, err)

	// re-execution fetches nothing and changes nothing
	require.NoError(t, p.Pull(context.Background(), build, "http://127.0.0.1:1/unreachable"))
	after, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPullIncompleteArtifact(t *testing.T) {
	p, s, _ := testPublisher(t)
	build := model.NewBuild("base", 100)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "binpkgs/", Typeflag: tar.TypeDir, Mode: 0755}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err := p.Pull(context.Background(), build, serve(t, buf.Bytes()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, artifactstatus.ErrIncompleteArtifact))
	assert.False(t, s.Pulled(build))
}

func TestPublishSwap(t *testing.T) {
	p, s, db := testPublisher(t)
	b100 := model.NewBuild("base", 100)
	b101 := model.NewBuild("base", 101)
	pull(t, p, b100, "app-foo/foo-1.0")
	pull(t, p, b101, "app-foo/foo-1.1")

	require.NoError(t, p.Publish(b101))
	require.NoError(t, p.Publish(b100))

	current, ok := s.CurrentlyPublished("base")
	require.True(t, ok)
	assert.Equal(t, b100, current)

	rec100, err := db.Get(b100)
	require.NoError(t, err)
	assert.True(t, rec100.Published)

	rec101, err := db.Get(b101)
	require.NoError(t, err)
	assert.False(t, rec101.Published)
}

func TestPublishUnpulled(t *testing.T) {
	p, _, _ := testPublisher(t)
	err := p.Publish(model.NewBuild("base", 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, storestatus.ErrBuildNotFound))
}

func TestRelease(t *testing.T) {
	p, s, db := testPublisher(t)
	build := model.NewBuild("base", 100)
	pull(t, p, build, "app-foo/foo-1.0")
	require.NoError(t, p.Publish(build))

	require.NoError(t, p.Release("base"))

	_, ok := s.CurrentlyPublished("base")
	assert.False(t, ok)
	rec, err := db.Get(build)
	require.NoError(t, err)
	assert.False(t, rec.Published)
}

func TestDeleteKeptBuild(t *testing.T) {
	p, s, _ := testPublisher(t)
	build := model.NewBuild("base", 100)
	pull(t, p, build, "app-foo/foo-1.0")
	require.NoError(t, p.SetKeep(build, true))

	err := p.Delete(context.Background(), build)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrBuildKept))

	// still fully retrievable
	assert.True(t, s.Pulled(build))
	_, err = s.Retrieve(build, model.ContentBinPkgs)
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	p, s, db := testPublisher(t)
	build := model.NewBuild("base", 100)
	pull(t, p, build, "app-foo/foo-1.0")

	require.NoError(t, p.Delete(context.Background(), build))

	assert.False(t, s.Pulled(build))
	exists, err := db.Exists(build)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDiff(t *testing.T) {
	p, _, _ := testPublisher(t)
	b100 := model.NewBuild("base", 100)
	b101 := model.NewBuild("base", 101)
	pull(t, p, b100, "app-foo/foo-1.0")
	pull(t, p, b101, "app-foo/foo-1.1", "app-bar/bar-2.0")

	changes, err := p.Diff(b100, b101)
	require.NoError(t, err)
	assert.Equal(t, []model.Change{
		{Item: "app-bar/bar", Status: model.Added},
		{Item: "app-foo/foo", Status: model.Changed},
	}, changes)

	same, err := p.Diff(b101, b101)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestPackagesCached(t *testing.T) {
	p, s, _ := testPublisher(t)
	build := model.NewBuild("base", 100)
	pull(t, p, build, "app-foo/foo-1.0")

	first, err := p.Packages(build)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// served from cache even after the build is gone from disk
	require.NoError(t, s.Remove(context.Background(), build))
	second, err := p.Packages(build)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMachines(t *testing.T) {
	p, _, _ := testPublisher(t)
	b100 := model.NewBuild("base", 100)
	pull(t, p, b100, "app-foo/foo-1.0")
	pull(t, p, model.NewBuild("web", 7), "app-foo/foo-1.0")
	require.NoError(t, p.Publish(b100))

	infos, err := p.Machines()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	base := infos[0]
	assert.Equal(t, "base", base.Machine)
	assert.Equal(t, 1, base.BuildCount)
	require.NotNil(t, base.Latest)
	assert.Equal(t, b100, base.Latest.Build)
	require.NotNil(t, base.Published)
	assert.Equal(t, b100, *base.Published)

	assert.Nil(t, infos[1].Published)
}

func TestEvents(t *testing.T) {
	p, _, _ := testPublisher(t)
	var got []EventType
	p.Subscribe(func(e Event) { got = append(got, e.Type) })

	build := model.NewBuild("base", 100)
	pull(t, p, build, "app-foo/foo-1.0")
	require.NoError(t, p.Publish(build))
	require.NoError(t, p.Release("base"))
	require.NoError(t, p.Delete(context.Background(), build))

	assert.Equal(t, []EventType{
		EventPrePull, EventPostPull, EventPublished, EventPreDelete, EventPostDelete,
	}, got)
}

func TestArchiveMirror(t *testing.T) {
	archive, err := localfs.New(afero.NewBasePathFs(afero.NewOsFs(), t.TempDir()))
	require.NoError(t, err)
	p, _, _ := testPublisher(t, Archive(archive))
	build := model.NewBuild("base", 100)

	pull(t, p, build, "app-foo/foo-1.0")

	has, err := archive.Has(context.Background(), "base.100.tar.gz")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestHandleTasks(t *testing.T) {
	p, s, _ := testPublisher(t)
	build := model.NewBuild("base", 100)
	url := serve(t, buildArtifact(t, packagesIndex("app-foo/foo-1.0")))

	ctx := context.Background()
	require.NoError(t, p.Handle(ctx, PullTask(build, url)))
	require.NoError(t, p.Handle(ctx, PublishTask(build)))
	assert.True(t, s.Published(build))

	err := p.Handle(ctx, worker.Task{Name: "bogus"})
	require.Error(t, err)

	err = p.Handle(ctx, worker.Task{Name: TaskPull, Args: map[string]string{"build": "base.100"}})
	assert.True(t, errors.Is(err, status.ErrNoArtifactURL))
}

func TestRecordTaskFailure(t *testing.T) {
	p, _, db := testPublisher(t)
	build := model.NewBuild("base", 100)
	_, err := db.Save(records.BuildRecord{Build: build})
	require.NoError(t, err)

	p.RecordTaskFailure(PullTask(build, "http://ci/artifact"), artifactstatus.ErrFetchFailed)

	rec, err := db.Get(build)
	require.NoError(t, err)
	assert.Contains(t, rec.Logs, "task pull failed")
}
