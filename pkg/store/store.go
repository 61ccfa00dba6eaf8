// Package store is the content-addressed build store.
//
// Each committed build owns four content trees materialized under
// builds/<machine>.<number>/ as hard links into a shared node area, so
// stored bytes grow with distinct content only. A commit stages the
// whole build privately and lands it with a single rename; readers see
// a build entirely or not at all. Node reference counts live in a
// transactional MetaStore and a node is deleted only when the last
// referencing build is removed.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/cafs"
	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/store/status"
)

const (
	tmpDir       = "tmp"
	buildsDir    = "builds"
	publishedDir = "published"
	tagsDir      = "tags"
	casDir       = "cas"
)

// Store persists builds with cross-build deduplication
type Store struct {
	root string
	cas  cafs.Fs
	meta MetaStore
	l    *zap.Logger

	commits  keyedMutex // per build key
	pointers keyedMutex // per machine
}

// StoreOption configures the build store
type StoreOption func(*Store)

// Logger sets a logger for the store
func Logger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}

// MetaBackend sets the MetaStore holding build manifests and node
// reference counts. It is required; bdgr.New provides the badger one.
func MetaBackend(meta MetaStore) StoreOption {
	return func(s *Store) {
		s.meta = meta
	}
}

// New opens (creating as needed) a build store rooted at the given
// directory
func New(root string, opts ...StoreOption) (*Store, error) {
	s := &Store{root: root, l: zap.NewNop()}
	for _, apply := range opts {
		apply(s)
	}

	for _, sub := range []string{tmpDir, buildsDir, publishedDir, tagsDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, status.ErrStorageIO.Wrap(err)
		}
	}

	if s.meta == nil {
		return nil, status.ErrStorageIO.WrapMessage("store: no meta backend configured")
	}

	var err error
	if s.cas, err = cafs.New(filepath.Join(root, casDir), cafs.Logger(s.l)); err != nil {
		return nil, status.ErrStorageIO.Wrap(err)
	}
	if err = s.meta.Initialize(); err != nil {
		return nil, status.ErrStorageIO.Wrap(err)
	}
	return s, nil
}

// Close releases the metadata database
func (s *Store) Close() error {
	return s.meta.Close()
}

// Root returns the store root directory
func (s *Store) Root() string {
	return s.root
}

func (s *Store) buildDir(build model.Build) string {
	return filepath.Join(s.root, buildsDir, build.ID())
}

// Commit persists a staged build: every file becomes a reference-counted
// storage node and the four trees become visible atomically, via a
// single rename of the staged build directory.
//
// Committing an already-committed build key is a no-op returning
// success. Concurrent commits sharing a build key serialize; the loser
// short-circuits on the pulled check.
func (s *Store) Commit(ctx context.Context, build model.Build, trees map[model.Content]string) error {
	unlock := s.commits.lock(build.ID())
	defer unlock()

	if s.Pulled(build) {
		s.l.Info("build already committed", zap.Stringer("build", build))
		return nil
	}
	for _, content := range model.Contents() {
		if _, ok := trees[content]; !ok {
			return status.ErrBuildNotPulled.WrapMessage("missing %s tree for %s", content, build)
		}
	}

	stage := filepath.Join(s.root, tmpDir, "commit-"+build.ID())
	if err := os.RemoveAll(stage); err != nil {
		return status.ErrStorageIO.Wrap(err)
	}
	defer os.RemoveAll(stage)

	manifest := &Manifest{Build: build.ID(), CommittedAt: time.Now().UTC()}
	sizes := make(map[string]int64)

	for _, content := range model.Contents() {
		if err := s.stageTree(ctx, trees[content], string(content), stage, manifest, sizes); err != nil {
			return err
		}
	}

	if err := s.meta.SaveManifest(manifest, sizes); err != nil {
		return err
	}
	if err := os.Rename(stage, s.buildDir(build)); err != nil {
		// roll the reference counts back and reclaim any nodes this
		// commit was the only holder of
		orphaned, derr := s.meta.DeleteManifest(build.ID())
		if derr != nil {
			s.l.Error("manifest rollback failed",
				zap.Stringer("build", build), zap.Error(derr))
		}
		s.reclaimNodes(ctx, orphaned)
		return status.ErrStorageIO.Wrap(err)
	}

	s.l.Info("build committed",
		zap.Stringer("build", build),
		zap.Int("entries", len(manifest.Entries)),
	)
	return nil
}

// stageTree walks one staged content tree, stores every regular file as
// a node and hard links it into the commit staging area
func (s *Store) stageTree(ctx context.Context, src, prefix, stage string, manifest *Manifest, sizes map[string]int64) error {
	if err := os.MkdirAll(filepath.Join(stage, prefix), 0755); err != nil {
		return status.ErrStorageIO.Wrap(err)
	}
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return status.ErrStorageIO.Wrap(err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		treePath := filepath.Join(prefix, rel)

		switch {
		case info.IsDir():
			manifest.Dirs = append(manifest.Dirs, treePath)
			return os.MkdirAll(filepath.Join(stage, treePath), 0755)

		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return status.ErrStorageIO.Wrap(err)
			}
			manifest.Symlinks = append(manifest.Symlinks, Symlink{Path: treePath, Target: target})
			return os.Symlink(target, filepath.Join(stage, treePath))

		case info.Mode().IsRegular():
			f, err := os.Open(path)
			if err != nil {
				return status.ErrStorageIO.Wrap(err)
			}
			res, err := s.cas.Put(ctx, f)
			f.Close()
			if err != nil {
				return status.ErrStorageIO.Wrap(err)
			}
			sizes[res.Key.String()] = res.Written
			manifest.Entries = append(manifest.Entries, Entry{
				Path: treePath,
				Key:  res.Key.String(),
				Size: res.Written,
				Mode: uint32(info.Mode().Perm()),
			})
			return s.cas.Link(ctx, res.Key, filepath.Join(stage, treePath))
		}
		// sockets, devices and the like don't belong in build artifacts
		s.l.Warn("skipping irregular file", zap.String("path", treePath))
		return nil
	})
}

// Pulled reports whether the build is fully committed: manifest saved
// and trees visible
func (s *Store) Pulled(build model.Build) bool {
	has, err := s.meta.HasManifest(build.ID())
	if err != nil || !has {
		return false
	}
	if _, err := os.Stat(s.buildDir(build)); err != nil {
		return false
	}
	return true
}

// Retrieve returns the on-disk path of one of the build's content trees
func (s *Store) Retrieve(build model.Build, content model.Content) (string, error) {
	if !s.Pulled(build) {
		return "", status.ErrBuildNotFound.WrapMessage("%s", build)
	}
	return filepath.Join(s.buildDir(build), string(content)), nil
}

// Remove deletes a committed build, decrements the reference count of
// every node it pointed at and reclaims nodes that reach zero.
//
// The currently published build cannot be removed. The machine's
// pointer lock is taken before the build's commit lock, the same
// order Publish uses, so a removal and a publish of the same build
// fully serialize.
func (s *Store) Remove(ctx context.Context, build model.Build) error {
	unlockPtr := s.pointers.lock(build.Machine)
	defer unlockPtr()
	unlock := s.commits.lock(build.ID())
	defer unlock()

	has, err := s.meta.HasManifest(build.ID())
	if err != nil {
		return err
	}
	if !has {
		return status.ErrBuildNotFound.WrapMessage("%s", build)
	}
	if s.Published(build) {
		return status.ErrBuildPublished.WrapMessage("%s", build)
	}

	for _, tag := range s.Tags(build) {
		if tag != "" {
			s.Untag(build.Machine, tag)
		}
	}
	if err := os.RemoveAll(s.buildDir(build)); err != nil {
		return status.ErrStorageIO.Wrap(err)
	}
	orphaned, err := s.meta.DeleteManifest(build.ID())
	if err != nil {
		return err
	}
	s.reclaimNodes(ctx, orphaned)

	s.l.Info("build removed",
		zap.Stringer("build", build),
		zap.Int("reclaimed_nodes", len(orphaned)),
	)
	return nil
}

// reclaimNodes deletes the object files behind nodes whose reference
// count reached zero
func (s *Store) reclaimNodes(ctx context.Context, orphaned []string) {
	for _, hash := range orphaned {
		key, err := cafs.KeyFromString(hash)
		if err != nil {
			continue
		}
		if err := s.cas.Delete(ctx, key); err != nil {
			s.l.Error("node delete failed", zap.String("key", hash), zap.Error(err))
		}
	}
}

// Builds returns every committed build
func (s *Store) Builds() ([]model.Build, error) {
	ids, err := s.meta.ListManifests()
	if err != nil {
		return nil, err
	}
	builds := make([]model.Build, 0, len(ids))
	for _, id := range ids {
		build, err := model.ParseBuild(id)
		if err != nil {
			continue
		}
		builds = append(builds, build)
	}
	return builds, nil
}

// Packages returns the package list from the build's binpkgs index
func (s *Store) Packages(build model.Build) ([]model.Package, error) {
	binpkgs, err := s.Retrieve(build, model.ContentBinPkgs)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(binpkgs, "Packages"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrPackageIndex.WrapMessage("%s", build)
		}
		return nil, status.ErrStorageIO.Wrap(err)
	}
	defer f.Close()
	return model.ParsePackages(f)
}

// SetMetadata writes gbp.json into the build's binpkgs tree
func (s *Store) SetMetadata(build model.Build, meta model.GBPMetadata) error {
	binpkgs, err := s.Retrieve(build, model.ContentBinPkgs)
	if err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(binpkgs, model.GBPMetadataFilename), data, 0644)
}

// GetMetadata reads the build's gbp.json
func (s *Store) GetMetadata(build model.Build) (model.GBPMetadata, error) {
	var meta model.GBPMetadata
	binpkgs, err := s.Retrieve(build, model.ContentBinPkgs)
	if err != nil {
		return meta, err
	}
	data, err := os.ReadFile(filepath.Join(binpkgs, model.GBPMetadataFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, status.ErrNoMetadata.WrapMessage("%s", build)
		}
		return meta, status.ErrStorageIO.Wrap(err)
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// Stats aggregates stored node count and bytes
func (s *Store) Stats() (NodeStats, error) {
	return s.meta.Stats()
}
