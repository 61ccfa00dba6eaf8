// Package bdgr is the badger-backed MetaStore: build manifests and
// node reference counts in one transactional key space.
package bdgr

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"

	"github.com/enku/gentoo-build-publisher/pkg/store"
	"github.com/enku/gentoo-build-publisher/pkg/store/status"
)

const (
	manifestPref = "manifest:"
	nodePref     = "node:"

	// badger returns ErrConflict when concurrent transactions touch the
	// same node counters; the losing transaction is simply replayed
	maxTxnRetries = 10
)

// New creates a badger-backed MetaStore rooted at baseDir
func New(baseDir string) store.MetaStore {
	return &metaStore{baseDir: baseDir}
}

type metaStore struct {
	baseDir string
	db      *badger.DB
	init    sync.Once
	close   sync.Once
}

func (m *metaStore) Initialize() error {
	var err error
	m.init.Do(func() {
		opts := badger.DefaultOptions(m.baseDir)
		opts.Logger = nil
		m.db, err = badger.Open(opts)
	})
	return err
}

func (m *metaStore) Close() error {
	var err error
	m.close.Do(func() {
		if m.db != nil {
			err = m.db.Close()
			if err == nil {
				m.db = nil
			}
		}
	})
	return err
}

func manifestKey(id string) []byte { return []byte(manifestPref + id) }
func nodeKey(hash string) []byte   { return []byte(nodePref + hash) }

func rewriteError(err error) error {
	switch err {
	case badger.ErrKeyNotFound:
		return status.ErrBuildNotFound
	case nil:
		return nil
	default:
		return status.ErrStorageIO.Wrap(err)
	}
}

// update retries the transaction on write conflicts
func (m *metaStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = m.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
	return err
}

func getNode(txn *badger.Txn, hash string) (store.NodeInfo, bool, error) {
	item, err := txn.Get(nodeKey(hash))
	if err == badger.ErrKeyNotFound {
		return store.NodeInfo{}, false, nil
	}
	if err != nil {
		return store.NodeInfo{}, false, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return store.NodeInfo{}, false, err
	}
	var info store.NodeInfo
	if err := jsoniter.Unmarshal(data, &info); err != nil {
		return store.NodeInfo{}, false, fmt.Errorf("node %s: json unmarshal failed: %v", hash, err)
	}
	return info, true, nil
}

func setNode(txn *badger.Txn, hash string, info store.NodeInfo) error {
	data, err := jsoniter.Marshal(info)
	if err != nil {
		return err
	}
	return txn.Set(nodeKey(hash), data)
}

func (m *metaStore) SaveManifest(manifest *store.Manifest, sizes map[string]int64) error {
	data, err := jsoniter.Marshal(manifest)
	if err != nil {
		return err
	}
	err = m.update(func(txn *badger.Txn) error {
		// second commit of the same build must not double-count
		if _, err := txn.Get(manifestKey(manifest.Build)); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		for _, hash := range manifest.NodeKeys() {
			info, found, err := getNode(txn, hash)
			if err != nil {
				return err
			}
			if !found {
				info.Size = sizes[hash]
			}
			info.Refs++
			if err := setNode(txn, hash, info); err != nil {
				return err
			}
		}
		return txn.Set(manifestKey(manifest.Build), data)
	})
	return rewriteError(err)
}

func (m *metaStore) GetManifest(id string) (*store.Manifest, error) {
	var manifest store.Manifest
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(manifestKey(id))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return jsoniter.Unmarshal(data, &manifest)
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	return &manifest, nil
}

func (m *metaStore) HasManifest(id string) (bool, error) {
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(manifestKey(id))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, rewriteError(err)
	}
	return true, nil
}

func (m *metaStore) DeleteManifest(id string) ([]string, error) {
	var orphaned []string
	err := m.update(func(txn *badger.Txn) error {
		orphaned = orphaned[:0]

		item, err := txn.Get(manifestKey(id))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var manifest store.Manifest
		if err := jsoniter.Unmarshal(data, &manifest); err != nil {
			return err
		}

		for _, hash := range manifest.NodeKeys() {
			info, found, err := getNode(txn, hash)
			if err != nil {
				return err
			}
			if !found {
				continue // already orphaned, nothing to decrement
			}
			info.Refs--
			if info.Refs <= 0 {
				if err := txn.Delete(nodeKey(hash)); err != nil {
					return err
				}
				orphaned = append(orphaned, hash)
				continue
			}
			if err := setNode(txn, hash, info); err != nil {
				return err
			}
		}
		return txn.Delete(manifestKey(id))
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	return orphaned, nil
}

func (m *metaStore) ListManifests() ([]string, error) {
	var ids []string
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(manifestPref)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	return ids, nil
}

func (m *metaStore) Stats() (store.NodeStats, error) {
	var stats store.NodeStats
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(nodePref)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var info store.NodeInfo
			if err := jsoniter.Unmarshal(data, &info); err != nil {
				return err
			}
			stats.Count++
			stats.Bytes += info.Size
		}
		return nil
	})
	if err != nil {
		return store.NodeStats{}, rewriteError(err)
	}
	return stats, nil
}
