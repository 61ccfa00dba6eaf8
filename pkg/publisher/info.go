package publisher

import (
	"github.com/enku/gentoo-build-publisher/pkg/diff"
	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/records"
	"github.com/enku/gentoo-build-publisher/pkg/store"
)

// MachineInfo summarizes one machine
type MachineInfo struct {
	Machine    string
	BuildCount int
	Latest     *records.BuildRecord
	Published  *model.Build
}

// Machines summarizes every machine known to records
func (p *Publisher) Machines() ([]MachineInfo, error) {
	names, err := p.db.Machines()
	if err != nil {
		return nil, err
	}
	infos := make([]MachineInfo, 0, len(names))
	for _, name := range names {
		info := MachineInfo{Machine: name}
		if info.BuildCount, err = p.db.Count(name); err != nil {
			return nil, err
		}
		if latest, err := p.db.Latest(name); err == nil {
			info.Latest = &latest
		}
		if published, ok := p.store.CurrentlyPublished(name); ok {
			info.Published = &published
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Records lists a machine's build records, newest first
func (p *Publisher) Records(machine string) ([]records.BuildRecord, error) {
	return p.db.ForMachine(machine)
}

// Record returns one build's record
func (p *Publisher) Record(build model.Build) (records.BuildRecord, error) {
	return p.db.Get(build)
}

// Packages lists a build's packages, served from the package cache
// once a build has been read
func (p *Publisher) Packages(build model.Build) ([]model.Package, error) {
	if cached, ok := p.cache.Get(build.ID()); ok {
		return cached.([]model.Package), nil
	}
	packages, err := p.store.Packages(build)
	if err != nil {
		return nil, err
	}
	p.cache.Add(build.ID(), packages)
	return packages, nil
}

// Diff classifies the package changes between two builds
func (p *Publisher) Diff(left, right model.Build) ([]model.Change, error) {
	leftPackages, err := p.Packages(left)
	if err != nil {
		return nil, err
	}
	rightPackages, err := p.Packages(right)
	if err != nil {
		return nil, err
	}
	return diff.Changes(leftPackages, rightPackages), nil
}

// Stats reports the store's referenced node totals
func (p *Publisher) Stats() (store.NodeStats, error) {
	return p.store.Stats()
}
