package store

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/store/status"
)

// TagSym separates a machine name from a tag name in a tag link,
// e.g. lighthouse@prod
const TagSym = "@"

var tagNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Publish atomically repoints the machine's current build to the given
// build. Any concurrent reader of the pointer observes an instantaneous
// jump from the old build to the new one.
//
// Publishing the already-published build is a no-op returning success.
//
// The build's commit lock is held across the pulled check and the
// pointer swap, so the build cannot be removed out from under a
// publish in flight. Lock order is pointers before commits, matching
// Remove.
func (s *Store) Publish(build model.Build) error {
	unlock := s.pointers.lock(build.Machine)
	defer unlock()
	unlockCommit := s.commits.lock(build.ID())
	defer unlockCommit()

	has, err := s.meta.HasManifest(build.ID())
	if err != nil {
		return err
	}
	if !has {
		return status.ErrBuildNotFound.WrapMessage("%s", build)
	}
	if !s.Pulled(build) {
		return status.ErrBuildNotPulled.WrapMessage("%s", build)
	}
	if err := s.swapLink(build, filepath.Join(s.root, publishedDir, build.Machine)); err != nil {
		return err
	}
	s.l.Info("build published", zap.Stringer("build", build))
	return nil
}

// swapLink points link at the build directory via a symlink created
// aside and renamed into place, so the swap is atomic
func (s *Store) swapLink(build model.Build, link string) error {
	target := filepath.Join("..", buildsDir, build.ID())
	tmp := link + ".new"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return status.ErrStorageIO.Wrap(err)
	}
	if err := os.Symlink(target, tmp); err != nil {
		return status.ErrStorageIO.Wrap(err)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return status.ErrStorageIO.Wrap(err)
	}
	return nil
}

// readLink resolves a pointer or tag link back to a build key
func (s *Store) readLink(link string) (model.Build, bool) {
	target, err := os.Readlink(link)
	if err != nil {
		return model.Build{}, false
	}
	build, err := model.ParseBuild(filepath.Base(target))
	if err != nil {
		return model.Build{}, false
	}
	return build, true
}

// Published reports whether the given build holds its machine's
// current pointer
func (s *Store) Published(build model.Build) bool {
	current, ok := s.CurrentlyPublished(build.Machine)
	return ok && current == build
}

// CurrentlyPublished returns the machine's published build, if any.
// The read is lock-free: it is a single symlink resolution.
func (s *Store) CurrentlyPublished(machine string) (model.Build, bool) {
	return s.readLink(filepath.Join(s.root, publishedDir, machine))
}

// Release clears the machine's current pointer without setting a new
// one. Releasing an unpublished machine is a no-op.
func (s *Store) Release(machine string) error {
	unlock := s.pointers.lock(machine)
	defer unlock()

	link := filepath.Join(s.root, publishedDir, machine)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return status.ErrStorageIO.Wrap(err)
	}
	s.l.Info("machine released", zap.String("machine", machine))
	return nil
}

// Tag points machine@name at the given pulled build. The build's
// commit lock covers the pulled check and the link swap, so a tag
// cannot land on a build mid-removal.
func (s *Store) Tag(build model.Build, name string) error {
	if !tagNameRe.MatchString(name) {
		return status.ErrInvalidTag.WrapMessage("%q", name)
	}
	unlock := s.commits.lock(build.ID())
	defer unlock()

	if !s.Pulled(build) {
		return status.ErrBuildNotPulled.WrapMessage("%s", build)
	}
	link := filepath.Join(s.root, tagsDir, build.Machine+TagSym+name)
	if err := s.swapLink(build, link); err != nil {
		return err
	}
	s.l.Info("build tagged", zap.Stringer("build", build), zap.String("tag", name))
	return nil
}

// Untag removes machine@name. Removing an absent tag is a no-op.
func (s *Store) Untag(machine, name string) error {
	if !tagNameRe.MatchString(name) {
		return status.ErrInvalidTag.WrapMessage("%q", name)
	}
	link := filepath.Join(s.root, tagsDir, machine+TagSym+name)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return status.ErrStorageIO.Wrap(err)
	}
	return nil
}

// ResolveTag returns the build machine@name points at
func (s *Store) ResolveTag(machine, name string) (model.Build, error) {
	if !tagNameRe.MatchString(name) {
		return model.Build{}, status.ErrInvalidTag.WrapMessage("%q", name)
	}
	link := filepath.Join(s.root, tagsDir, machine+TagSym+name)
	build, ok := s.readLink(link)
	if !ok || !s.Pulled(build) {
		return model.Build{}, status.ErrTagNotFound.WrapMessage("%s%s%s", machine, TagSym, name)
	}
	return build, nil
}

// Tags returns the tag names pointing at the build, sorted. A published
// build's list includes the empty string, matching the convention that
// publishing is tagging with the empty tag.
func (s *Store) Tags(build model.Build) []string {
	var tags []string
	if s.Published(build) {
		tags = append(tags, "")
	}
	entries, err := os.ReadDir(filepath.Join(s.root, tagsDir))
	if err != nil {
		return tags
	}
	prefix := build.Machine + TagSym
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		name := strings.TrimPrefix(entry.Name(), prefix)
		target, ok := s.readLink(filepath.Join(s.root, tagsDir, entry.Name()))
		if ok && target == build {
			tags = append(tags, name)
		}
	}
	sort.Strings(tags)
	return tags
}

// TaggedBuilds returns every build of the machine referenced by at
// least one tag. Used by the pruner's exclusion policy.
func (s *Store) TaggedBuilds(machine string) []model.Build {
	var builds []model.Build
	entries, err := os.ReadDir(filepath.Join(s.root, tagsDir))
	if err != nil {
		return nil
	}
	prefix := machine + TagSym
	seen := map[model.Build]struct{}{}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		target, ok := s.readLink(filepath.Join(s.root, tagsDir, entry.Name()))
		if !ok {
			continue
		}
		if _, dup := seen[target]; !dup {
			seen[target] = struct{}{}
			builds = append(builds, target)
		}
	}
	return builds
}
