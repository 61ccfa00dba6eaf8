// Package status declares the sentinel errors of the records layer.
package status

import "github.com/enku/gentoo-build-publisher/pkg/errors"

var (
	// ErrRecordNotFound indicates there is no record for the build
	ErrRecordNotFound = errors.New("build record not found")

	// ErrInvalidRecord indicates a record without a valid build identity
	ErrInvalidRecord = errors.New("invalid build record")

	// ErrUnknownField indicates a search over a field that is not searchable
	ErrUnknownField = errors.New("unknown search field")

	// ErrRecordsIO indicates a failure of the backing record database
	ErrRecordsIO = errors.New("records backend error")
)
