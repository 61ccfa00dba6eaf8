// Package records tracks what the system knows about builds beyond
// their stored trees: submission and completion times, notes, captured
// CI logs, and the keep and published flags consulted by retention.
//
// Records are an external collaborator of the store. They may lag or
// disagree with the filesystem; callers that need the authoritative
// pulled or published state ask the store and treat the record as an
// annotation.
package records

import (
	"time"

	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/records/status"
)

// SearchFields are the BuildRecord fields Search accepts
var SearchFields = []string{"logs", "note"}

// FieldGetter maps a search field name to its accessor. Fails with
// status.ErrUnknownField for anything outside SearchFields.
func FieldGetter(field string) (func(BuildRecord) string, error) {
	switch field {
	case "note":
		return func(r BuildRecord) string { return r.Note }, nil
	case "logs":
		return func(r BuildRecord) string { return r.Logs }, nil
	default:
		return nil, status.ErrUnknownField.WrapMessage("%q", field)
	}
}

// BuildRecord annotates a build
type BuildRecord struct {
	Build model.Build `json:"build"`

	// Note is an operator-supplied annotation
	Note string `json:"note,omitempty"`

	// Logs is the CI log output captured at pull time
	Logs string `json:"logs,omitempty"`

	// Keep excludes the build from retention pruning
	Keep bool `json:"keep"`

	// Published mirrors the publish pointer for listings
	Published bool `json:"published"`

	// Submitted is when the build was first seen
	Submitted time.Time `json:"submitted"`

	// Completed is when the pull finished; zero while in flight
	Completed time.Time `json:"completed,omitempty"`

	// Built is the CI build timestamp
	Built time.Time `json:"built,omitempty"`
}

// ID returns the build's string identity
func (r BuildRecord) ID() string {
	return r.Build.ID()
}

// Pulled reports whether the pull for this record has completed
func (r BuildRecord) Pulled() bool {
	return !r.Completed.IsZero()
}

// RecordDB stores and queries build records. Implementations are safe
// for concurrent use.
type RecordDB interface {
	// Initialize prepares the backend; idempotent
	Initialize() error

	// Close releases the backend
	Close() error

	// Save upserts a record, stamping Submitted when unset, and
	// returns the stored record
	Save(r BuildRecord) (BuildRecord, error)

	// Get retrieves the record for the build. Fails with
	// status.ErrRecordNotFound when there is none.
	Get(b model.Build) (BuildRecord, error)

	// Delete removes the record for the build; idempotent
	Delete(b model.Build) error

	// Exists reports whether a record for the build exists
	Exists(b model.Build) (bool, error)

	// ForMachine lists the machine's records, newest build first
	ForMachine(machine string) ([]BuildRecord, error)

	// Machines lists machine names that have records, sorted
	Machines() ([]string, error)

	// Latest returns the machine's newest completed record
	Latest(machine string) (BuildRecord, error)

	// Previous returns the machine's newest completed record older
	// than the given build
	Previous(b model.Build) (BuildRecord, error)

	// Next returns the machine's oldest completed record newer than
	// the given build
	Next(b model.Build) (BuildRecord, error)

	// Search finds the machine's records whose field contains the
	// query, case-insensitively. field must be one of SearchFields.
	Search(machine, field, query string) ([]BuildRecord, error)

	// Count returns the number of records, restricted to one machine
	// when machine is non-empty
	Count(machine string) (int, error)
}
