// Package status exports errors produced by the build store.
package status

import "github.com/enku/gentoo-build-publisher/pkg/errors"

var (
	// ErrBuildNotFound indicates the build was never committed to the store
	ErrBuildNotFound = errors.New("build not found")

	// ErrBuildNotPulled indicates an operation requiring a fully
	// committed build was attempted on an uncommitted one
	ErrBuildNotPulled = errors.New("build not pulled")

	// ErrBuildPublished indicates a destructive operation was attempted
	// on the currently published build
	ErrBuildPublished = errors.New("build is published")

	// ErrTagNotFound indicates the tag does not resolve to a build
	ErrTagNotFound = errors.New("tag not found")

	// ErrInvalidTag indicates a tag name with characters outside
	// [A-Za-z0-9_.-]
	ErrInvalidTag = errors.New("invalid tag name")

	// ErrPackageIndex indicates the build's binpkgs tree carries no
	// Packages index
	ErrPackageIndex = errors.New("package index missing")

	// ErrNoMetadata indicates the build has no gbp.json metadata
	ErrNoMetadata = errors.New("build metadata missing")

	// ErrStorageIO indicates a fatal storage failure such as disk-full
	// or permission-denied; surfaced to operators, never silently retried
	ErrStorageIO = errors.New("storage I/O failure")
)
