package store

import "time"

// Entry is one regular file of a committed build tree, pointing at a
// storage node
type Entry struct {
	// Path is relative to the build directory and starts with the
	// content type, e.g. "binpkgs/app-foo/foo/foo-1.0-1.xpak"
	Path string `json:"path"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
	Mode uint32 `json:"mode"`
}

// Symlink is a symbolic link carried verbatim in a build tree
type Symlink struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

// Manifest records everything a committed build references.
//
// It is the unit the reference counter works from: removing a build
// decrements exactly the node set listed here.
type Manifest struct {
	Build       string    `json:"build"`
	Entries     []Entry   `json:"entries"`
	Symlinks    []Symlink `json:"symlinks,omitempty"`
	Dirs        []string  `json:"dirs,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

// NodeKeys returns the distinct node keys referenced by the manifest
func (m *Manifest) NodeKeys() []string {
	seen := make(map[string]struct{}, len(m.Entries))
	keys := make([]string, 0, len(m.Entries))
	for _, entry := range m.Entries {
		if _, ok := seen[entry.Key]; ok {
			continue
		}
		seen[entry.Key] = struct{}{}
		keys = append(keys, entry.Key)
	}
	return keys
}

// NodeInfo is the per-node metadata tracked by the reference counter
type NodeInfo struct {
	Size int64 `json:"size"`
	Refs int   `json:"refs"`
}

// NodeStats aggregates the stored node population
type NodeStats struct {
	Count int
	Bytes int64
}
