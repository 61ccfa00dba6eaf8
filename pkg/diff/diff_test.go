package diff

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enku/gentoo-build-publisher/pkg/model"
)

func pkg(cpv string) model.Package {
	return model.Package{CPV: cpv, Repo: "gentoo"}
}

func TestChanges(t *testing.T) {
	left := []model.Package{pkg("app-foo/foo-1.0")}
	right := []model.Package{pkg("app-foo/foo-1.1"), pkg("app-bar/bar-2.0")}

	got := Changes(left, right)

	assert.Equal(t, []model.Change{
		{Item: "app-bar/bar", Status: model.Added},
		{Item: "app-foo/foo", Status: model.Changed},
	}, got)
}

func TestChangesRemoved(t *testing.T) {
	left := []model.Package{pkg("app-foo/foo-1.0"), pkg("sys-apps/portage-3.0.49")}
	right := []model.Package{pkg("sys-apps/portage-3.0.49")}

	got := Changes(left, right)

	assert.Equal(t, []model.Change{
		{Item: "app-foo/foo", Status: model.Removed},
	}, got)
}

func TestChangesSelfIsEmpty(t *testing.T) {
	packages := []model.Package{
		pkg("app-foo/foo-1.0"),
		pkg("app-bar/bar-2.0"),
		pkg("sys-libs/glibc-2.37-r3"),
	}
	assert.Empty(t, Changes(packages, packages))
}

func TestChangesMirror(t *testing.T) {
	left := []model.Package{
		pkg("app-foo/foo-1.0"),
		pkg("app-old/old-0.1"),
		pkg("sys-libs/glibc-2.37-r3"),
	}
	right := []model.Package{
		pkg("app-foo/foo-1.1"),
		pkg("app-new/new-5.0"),
		pkg("sys-libs/glibc-2.37-r3"),
	}

	forward := Changes(left, right)
	backward := Changes(right, left)

	assert.Len(t, backward, len(forward))
	flipped := make(map[string]model.ChangeStatus, len(backward))
	for _, c := range backward {
		flipped[c.Item] = c.Status
	}
	for _, c := range forward {
		assert.Equal(t, -c.Status, flipped[c.Item], c.Item)
	}
}

func TestChangesOrderIndependent(t *testing.T) {
	left := []model.Package{
		pkg("app-foo/foo-1.0"),
		pkg("app-bar/bar-2.0"),
		pkg("sys-libs/glibc-2.37-r3"),
	}
	right := []model.Package{
		pkg("app-foo/foo-1.1"),
		pkg("sys-libs/glibc-2.37-r3"),
	}

	want := Changes(left, right)
	for i := 0; i < 10; i++ {
		rand.Shuffle(len(left), func(a, b int) { left[a], left[b] = left[b], left[a] })
		rand.Shuffle(len(right), func(a, b int) { right[a], right[b] = right[b], right[a] })
		assert.Equal(t, want, Changes(left, right))
	}
}

func TestChangesSlots(t *testing.T) {
	// two co-installed versions on both sides is not a change
	left := []model.Package{pkg("dev-lang/python-3.11.4"), pkg("dev-lang/python-3.12.0")}
	right := []model.Package{pkg("dev-lang/python-3.12.0"), pkg("dev-lang/python-3.11.4")}
	assert.Empty(t, Changes(left, right))

	// dropping one slot is a change, not a removal
	got := Changes(left, []model.Package{pkg("dev-lang/python-3.12.0")})
	assert.Equal(t, []model.Change{
		{Item: "dev-lang/python", Status: model.Changed},
	}, got)
}
