// Package memory is the in-process RecordDB, for tests and
// single-shot CLI use.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/records"
	"github.com/enku/gentoo-build-publisher/pkg/records/status"
)

// New creates an empty in-memory RecordDB
func New() records.RecordDB {
	return &recordDB{byID: make(map[string]records.BuildRecord)}
}

type recordDB struct {
	mu   sync.RWMutex
	byID map[string]records.BuildRecord
}

func (db *recordDB) Initialize() error { return nil }
func (db *recordDB) Close() error      { return nil }

func (db *recordDB) Save(r records.BuildRecord) (records.BuildRecord, error) {
	if r.Build.IsZero() {
		return records.BuildRecord{}, status.ErrInvalidRecord
	}
	if r.Submitted.IsZero() {
		r.Submitted = time.Now().UTC()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.byID[r.ID()] = r
	return r, nil
}

func (db *recordDB) Get(b model.Build) (records.BuildRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.byID[b.ID()]
	if !ok {
		return records.BuildRecord{}, status.ErrRecordNotFound
	}
	return r, nil
}

func (db *recordDB) Delete(b model.Build) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.byID, b.ID())
	return nil
}

func (db *recordDB) Exists(b model.Build) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.byID[b.ID()]
	return ok, nil
}

func (db *recordDB) ForMachine(machine string) ([]records.BuildRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.forMachine(machine), nil
}

// forMachine returns the machine's records newest first; callers hold the lock
func (db *recordDB) forMachine(machine string) []records.BuildRecord {
	var out []records.BuildRecord
	for _, r := range db.byID {
		if r.Build.Machine == machine {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Build.Number > out[j].Build.Number
	})
	return out
}

func (db *recordDB) Machines() ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range db.byID {
		seen[r.Build.Machine] = struct{}{}
	}
	machines := make([]string, 0, len(seen))
	for m := range seen {
		machines = append(machines, m)
	}
	sort.Strings(machines)
	return machines, nil
}

func (db *recordDB) Latest(machine string) (records.BuildRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, r := range db.forMachine(machine) {
		if r.Pulled() {
			return r, nil
		}
	}
	return records.BuildRecord{}, status.ErrRecordNotFound
}

func (db *recordDB) Previous(b model.Build) (records.BuildRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, r := range db.forMachine(b.Machine) {
		if r.Build.Number < b.Number && r.Pulled() {
			return r, nil
		}
	}
	return records.BuildRecord{}, status.ErrRecordNotFound
}

func (db *recordDB) Next(b model.Build) (records.BuildRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	all := db.forMachine(b.Machine)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Build.Number > b.Number && all[i].Pulled() {
			return all[i], nil
		}
	}
	return records.BuildRecord{}, status.ErrRecordNotFound
}

func (db *recordDB) Search(machine, field, query string) ([]records.BuildRecord, error) {
	get, err := records.FieldGetter(field)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []records.BuildRecord
	for _, r := range db.forMachine(machine) {
		if strings.Contains(strings.ToLower(get(r)), query) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (db *recordDB) Count(machine string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if machine == "" {
		return len(db.byID), nil
	}
	return len(db.forMachine(machine)), nil
}
