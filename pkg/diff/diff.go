// Package diff computes the package-level difference between two
// builds' package lists.
//
// Packages are classified by category/name identity. A name present
// only on the right is ADDED, only on the left REMOVED, and present on
// both sides with a differing version set CHANGED. The result is
// sorted by package identifier so it is stable regardless of input
// order, and diffing the two sides in either direction yields mirror
// images.
package diff

import (
	"sort"

	"github.com/enku/gentoo-build-publisher/pkg/model"
)

// Changes classifies the difference between two package lists
func Changes(left, right []model.Package) []model.Change {
	lv := versionsByName(left)
	rv := versionsByName(right)

	var changes []model.Change
	for name, versions := range lv {
		other, ok := rv[name]
		if !ok {
			changes = append(changes, model.Change{Item: name, Status: model.Removed})
			continue
		}
		if !sameVersions(versions, other) {
			changes = append(changes, model.Change{Item: name, Status: model.Changed})
		}
	}
	for name := range rv {
		if _, ok := lv[name]; !ok {
			changes = append(changes, model.Change{Item: name, Status: model.Added})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Item < changes[j].Item
	})
	return changes
}

// versionsByName groups the version strings of each category/name.
// A name may carry several versions at once (slots), so the value is
// a set.
func versionsByName(packages []model.Package) map[string]map[string]struct{} {
	byName := make(map[string]map[string]struct{})
	for _, p := range packages {
		name := p.CN()
		if byName[name] == nil {
			byName[name] = make(map[string]struct{})
		}
		byName[name][p.Version()] = struct{}{}
	}
	return byName
}

func sameVersions(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}
