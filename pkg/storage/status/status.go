// Package status declares error constants returned by implementations
// of the Store interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/storage and one of
// its implementations.
package status

import "github.com/enku/gentoo-build-publisher/pkg/errors"

var (
	// ErrNotFound indicates that the fetched object does not exist on storage
	ErrNotFound = errors.New("object not found")

	// ErrUnauthorized indicates that the provided credentials were rejected
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates that the backend forbids access to the target resource
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidResource indicates that the storage resource has an invalid name
	ErrInvalidResource = errors.New("invalid storage resource name")

	// ErrStorageAPI indicates any other backend API error
	ErrStorageAPI = errors.New("storage API error")
)
