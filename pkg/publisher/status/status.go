// Package status declares the sentinel errors of the publisher.
package status

import "github.com/enku/gentoo-build-publisher/pkg/errors"

var (
	// ErrBuildKept indicates a delete aimed at a build marked keep
	ErrBuildKept = errors.New("build is marked keep")

	// ErrNoArtifactURL indicates a pull task without an artifact URL
	ErrNoArtifactURL = errors.New("no artifact url")
)
