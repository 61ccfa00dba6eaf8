// Package bdgr is the badger-backed RecordDB for standalone
// deployments that want records to survive restarts.
package bdgr

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"

	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/records"
	"github.com/enku/gentoo-build-publisher/pkg/records/status"
)

const recordPref = "record:"

// New creates a badger-backed RecordDB rooted at baseDir
func New(baseDir string) records.RecordDB {
	return &recordDB{baseDir: baseDir}
}

type recordDB struct {
	baseDir string
	db      *badger.DB
	init    sync.Once
	close   sync.Once
}

func (r *recordDB) Initialize() error {
	var err error
	r.init.Do(func() {
		opts := badger.DefaultOptions(r.baseDir)
		opts.Logger = nil
		r.db, err = badger.Open(opts)
	})
	return err
}

func (r *recordDB) Close() error {
	var err error
	r.close.Do(func() {
		if r.db != nil {
			err = r.db.Close()
			if err == nil {
				r.db = nil
			}
		}
	})
	return err
}

func recordKey(id string) []byte { return []byte(recordPref + id) }

func rewriteError(err error) error {
	switch err {
	case badger.ErrKeyNotFound:
		return status.ErrRecordNotFound
	case nil:
		return nil
	default:
		return status.ErrRecordsIO.Wrap(err)
	}
}

func (r *recordDB) Save(rec records.BuildRecord) (records.BuildRecord, error) {
	if rec.Build.IsZero() {
		return records.BuildRecord{}, status.ErrInvalidRecord
	}
	if rec.Submitted.IsZero() {
		rec.Submitted = time.Now().UTC()
	}
	data, err := jsoniter.Marshal(rec)
	if err != nil {
		return records.BuildRecord{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ID()), data)
	})
	if err != nil {
		return records.BuildRecord{}, rewriteError(err)
	}
	return rec, nil
}

func (r *recordDB) Get(b model.Build) (records.BuildRecord, error) {
	var rec records.BuildRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(b.ID()))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return jsoniter.Unmarshal(data, &rec)
	})
	if err != nil {
		return records.BuildRecord{}, rewriteError(err)
	}
	return rec, nil
}

func (r *recordDB) Delete(b model.Build) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(recordKey(b.ID()))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	return rewriteError(err)
}

func (r *recordDB) Exists(b model.Build) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(b.ID()))
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

// scan visits every stored record, restricted to one machine when
// machine is non-empty
func (r *recordDB) scan(machine string, visit func(records.BuildRecord)) error {
	return r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(recordPref)
		if machine != "" {
			prefix = recordKey(machine + ".")
		}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec records.BuildRecord
			if err := jsoniter.Unmarshal(data, &rec); err != nil {
				return err
			}
			visit(rec)
		}
		return nil
	})
}

func (r *recordDB) ForMachine(machine string) ([]records.BuildRecord, error) {
	var out []records.BuildRecord
	err := r.scan(machine, func(rec records.BuildRecord) {
		out = append(out, rec)
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Build.Number > out[j].Build.Number
	})
	return out, nil
}

func (r *recordDB) Machines() ([]string, error) {
	seen := make(map[string]struct{})
	err := r.scan("", func(rec records.BuildRecord) {
		seen[rec.Build.Machine] = struct{}{}
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	machines := make([]string, 0, len(seen))
	for m := range seen {
		machines = append(machines, m)
	}
	sort.Strings(machines)
	return machines, nil
}

func (r *recordDB) Latest(machine string) (records.BuildRecord, error) {
	all, err := r.ForMachine(machine)
	if err != nil {
		return records.BuildRecord{}, err
	}
	for _, rec := range all {
		if rec.Pulled() {
			return rec, nil
		}
	}
	return records.BuildRecord{}, status.ErrRecordNotFound
}

func (r *recordDB) Previous(b model.Build) (records.BuildRecord, error) {
	all, err := r.ForMachine(b.Machine)
	if err != nil {
		return records.BuildRecord{}, err
	}
	for _, rec := range all {
		if rec.Build.Number < b.Number && rec.Pulled() {
			return rec, nil
		}
	}
	return records.BuildRecord{}, status.ErrRecordNotFound
}

func (r *recordDB) Next(b model.Build) (records.BuildRecord, error) {
	all, err := r.ForMachine(b.Machine)
	if err != nil {
		return records.BuildRecord{}, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Build.Number > b.Number && all[i].Pulled() {
			return all[i], nil
		}
	}
	return records.BuildRecord{}, status.ErrRecordNotFound
}

func (r *recordDB) Search(machine, field, query string) ([]records.BuildRecord, error) {
	get, err := records.FieldGetter(field)
	if err != nil {
		return nil, err
	}
	all, err := r.ForMachine(machine)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	var out []records.BuildRecord
	for _, rec := range all {
		if strings.Contains(strings.ToLower(get(rec)), query) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *recordDB) Count(machine string) (int, error) {
	count := 0
	err := r.scan(machine, func(records.BuildRecord) { count++ })
	if err != nil {
		return 0, rewriteError(err)
	}
	return count, nil
}
