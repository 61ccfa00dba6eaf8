package store

// A MetaStore persists build manifests and node reference counts.
//
// Reference count mutation is transactional: SaveManifest increments
// every node the manifest references and DeleteManifest decrements
// them, atomically with the manifest write/delete itself, so counts
// can never drift from the manifest population under concurrent
// commits and removals.
type MetaStore interface {
	Initialize() error
	Close() error

	// SaveManifest stores the manifest and increments the refcount of
	// each referenced node, recording sizes for new nodes
	SaveManifest(*Manifest, map[string]int64) error

	// GetManifest returns the manifest for a build id, or
	// status.ErrBuildNotFound
	GetManifest(id string) (*Manifest, error)

	// HasManifest reports whether the build id was committed
	HasManifest(id string) (bool, error)

	// DeleteManifest removes the manifest, decrements node refcounts
	// and returns the keys of nodes that reached zero references
	DeleteManifest(id string) ([]string, error)

	// ListManifests returns all committed build ids
	ListManifests() ([]string, error)

	// Stats aggregates node count and bytes across the store
	Stats() (NodeStats, error)
}
