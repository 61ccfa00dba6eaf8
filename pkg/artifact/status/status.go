// Package status exports errors produced by the artifact fetcher and
// validator.
package status

import "github.com/enku/gentoo-build-publisher/pkg/errors"

var (
	// ErrCorruptArchive indicates the artifact could not be
	// decompressed or parsed. Structural: never retried.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrIncompleteArtifact indicates the archive is missing one of the
	// required content trees. Structural: never retried.
	ErrIncompleteArtifact = errors.New("incomplete artifact")

	// ErrFetchTimeout indicates the artifact download exceeded its time
	// bound. Transient: retried with backoff.
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrFetchFailed indicates a download failure other than a timeout.
	// Transient: retried with backoff.
	ErrFetchFailed = errors.New("fetch failed")
)
