// Package publisher composes the store, artifact handling, records
// and retention into the operations exposed to operators: pull a CI
// build, publish it, diff builds, tag, annotate and prune.
//
// The publisher owns cross-component consistency. Per-machine
// operations that move shared state (publish, delete, prune) serialize
// on a machine mutex; the store's own locking covers commit
// deduplication and pointer atomicity underneath.
package publisher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/artifact"
	"github.com/enku/gentoo-build-publisher/pkg/errors"
	"github.com/enku/gentoo-build-publisher/pkg/metrics"
	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/publisher/status"
	"github.com/enku/gentoo-build-publisher/pkg/records"
	recordsstatus "github.com/enku/gentoo-build-publisher/pkg/records/status"
	"github.com/enku/gentoo-build-publisher/pkg/storage"
	"github.com/enku/gentoo-build-publisher/pkg/store"
)

const defaultCacheSize = 64

// Publisher drives the build lifecycle
type Publisher struct {
	store     *store.Store
	db        records.RecordDB
	fetcher   *artifact.Fetcher
	extractor *artifact.Extractor
	archive   storage.Store
	recorder  *metrics.Recorder
	cache     *lru.Cache
	l         *zap.Logger

	retainCount int
	retainDays  int

	machines machineMutex

	obsMu     sync.RWMutex
	observers []Observer
}

// Option configures a Publisher
type Option func(*Publisher)

// Fetcher overrides the artifact fetcher
func Fetcher(f *artifact.Fetcher) Option {
	return func(p *Publisher) {
		if f != nil {
			p.fetcher = f
		}
	}
}

// Extractor overrides the artifact extractor
func Extractor(e *artifact.Extractor) Option {
	return func(p *Publisher) {
		if e != nil {
			p.extractor = e
		}
	}
}

// Archive mirrors every pulled artifact tarball to a blob store
func Archive(s storage.Store) Option {
	return func(p *Publisher) {
		p.archive = s
	}
}

// Recorder wires operational metrics
func Recorder(r *metrics.Recorder) Option {
	return func(p *Publisher) {
		p.recorder = r
	}
}

// Retention sets the pruning thresholds. Zero disables the
// corresponding threshold; both zero disables pruning.
func Retention(count, days int) Option {
	return func(p *Publisher) {
		p.retainCount = count
		p.retainDays = days
	}
}

// Logger sets a logger
func Logger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.l = l
		}
	}
}

// New creates a Publisher over a store and a record database
func New(s *store.Store, db records.RecordDB, opts ...Option) *Publisher {
	cache, _ := lru.New(defaultCacheSize)
	p := &Publisher{
		store: s,
		db:    db,
		cache: cache,
		l:     zap.NewNop(),
	}
	for _, apply := range opts {
		apply(p)
	}
	if p.fetcher == nil {
		p.fetcher = artifact.NewFetcher()
	}
	if p.extractor == nil {
		p.extractor = artifact.NewExtractor(filepath.Join(s.Root(), "tmp"))
	}
	return p
}

// Pull downloads, validates and commits one CI build. Pulling a build
// that is already committed is a no-op, which keeps the task safe to
// re-execute.
func (p *Publisher) Pull(ctx context.Context, build model.Build, url string) error {
	rec, err := p.db.Get(build)
	if err != nil {
		if !errors.Is(err, recordsstatus.ErrRecordNotFound) {
			return err
		}
		rec = records.BuildRecord{Build: build}
	}
	if p.store.Pulled(build) && rec.Pulled() {
		p.l.Info("build already pulled", zap.String("build", build.ID()))
		return nil
	}
	if rec, err = p.db.Save(rec); err != nil {
		return err
	}

	p.notify(Event{Type: EventPrePull, Build: build})
	started := time.Now()

	body, cancel, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	defer cancel()
	staged, err := p.stage(ctx, build, body)
	body.Close()
	if err != nil {
		return err
	}
	defer staged.Cleanup()

	if err := p.store.Commit(ctx, build, staged.Trees); err != nil {
		return err
	}

	rec.Completed = time.Now().UTC()
	if rec.Built.IsZero() {
		rec.Built = rec.Completed
	}
	if _, err := p.db.Save(rec); err != nil {
		return err
	}
	p.writeMetadata(build, rec, time.Since(started))

	p.recorder.IncPull(build.Machine)
	p.recorder.ObservePullDuration(time.Since(started))
	p.updateGauges(build.Machine)
	p.notify(Event{Type: EventPostPull, Build: build})
	p.l.Info("build pulled",
		zap.String("build", build.ID()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// stage extracts the artifact stream, spooling it through a temp file
// first when an archive mirror is configured
func (p *Publisher) stage(ctx context.Context, build model.Build, body io.Reader) (*artifact.StagedBuild, error) {
	if p.archive == nil {
		return p.extractor.Extract(ctx, body)
	}

	spool, err := os.CreateTemp("", "gbp-artifact-")
	if err != nil {
		return nil, err
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	if _, err := storage.PipeIO(spool, body); err != nil {
		return nil, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := p.archive.Put(ctx, build.ID()+".tar.gz", spool); err != nil {
		// the mirror is best-effort; the pull carries on
		p.l.Warn("artifact archive put failed",
			zap.String("build", build.ID()),
			zap.String("archive", p.archive.String()),
			zap.Error(err),
		)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return p.extractor.Extract(ctx, spool)
}

// writeMetadata drops gbp.json into the committed binpkgs tree
func (p *Publisher) writeMetadata(build model.Build, rec records.BuildRecord, elapsed time.Duration) {
	packages, err := p.store.Packages(build)
	if err != nil {
		p.l.Warn("package index unreadable, skipping build metadata",
			zap.String("build", build.ID()), zap.Error(err))
		return
	}
	var started int64
	if !rec.Built.IsZero() {
		started = rec.Built.Unix()
	}
	meta := model.NewGBPMetadata(int64(elapsed.Seconds()), started, packages)
	if err := p.store.SetMetadata(build, meta); err != nil {
		p.l.Warn("writing build metadata failed",
			zap.String("build", build.ID()), zap.Error(err))
	}
}

// Publish atomically points the build's machine at it. The previous
// holder's published flag is cleared in records.
func (p *Publisher) Publish(build model.Build) error {
	unlock := p.machines.lock(build.Machine)
	defer unlock()

	prev, hadPrev := p.store.CurrentlyPublished(build.Machine)
	if err := p.store.Publish(build); err != nil {
		return err
	}

	if hadPrev && prev != build {
		p.setPublishedFlag(prev, false)
	}
	p.setPublishedFlag(build, true)

	p.recorder.IncPublish(build.Machine)
	p.notify(Event{Type: EventPublished, Build: build})
	p.l.Info("build published", zap.String("build", build.ID()))
	return nil
}

// Release withdraws the machine's publish pointer; idempotent
func (p *Publisher) Release(machine string) error {
	unlock := p.machines.lock(machine)
	defer unlock()

	current, hadCurrent := p.store.CurrentlyPublished(machine)
	if err := p.store.Release(machine); err != nil {
		return err
	}
	if hadCurrent {
		p.setPublishedFlag(current, false)
	}
	return nil
}

func (p *Publisher) setPublishedFlag(build model.Build, published bool) {
	rec, err := p.db.Get(build)
	if err != nil {
		if !errors.Is(err, recordsstatus.ErrRecordNotFound) {
			p.l.Warn("reading record failed", zap.String("build", build.ID()), zap.Error(err))
			return
		}
		rec = records.BuildRecord{Build: build}
	}
	if rec.Published == published {
		return
	}
	rec.Published = published
	if _, err := p.db.Save(rec); err != nil {
		p.l.Warn("updating published flag failed",
			zap.String("build", build.ID()), zap.Error(err))
	}
}

// Delete removes a build, its record and any tags. Builds marked keep
// are refused with status.ErrBuildKept; the published build is refused
// by the store.
func (p *Publisher) Delete(ctx context.Context, build model.Build) error {
	unlock := p.machines.lock(build.Machine)
	defer unlock()
	return p.remove(ctx, build)
}

// remove deletes one build; callers hold the machine lock
func (p *Publisher) remove(ctx context.Context, build model.Build) error {
	if rec, err := p.db.Get(build); err == nil && rec.Keep {
		return status.ErrBuildKept.WrapMessage("%s", build.ID())
	}

	p.notify(Event{Type: EventPreDelete, Build: build})
	if err := p.store.Remove(ctx, build); err != nil {
		return err
	}
	if err := p.db.Delete(build); err != nil {
		p.l.Warn("deleting record failed", zap.String("build", build.ID()), zap.Error(err))
	}
	p.cache.Remove(build.ID())
	p.updateGauges(build.Machine)
	p.notify(Event{Type: EventPostDelete, Build: build})
	p.l.Info("build removed", zap.String("build", build.ID()))
	return nil
}

// updateGauges refreshes the store-level gauges after a mutation
func (p *Publisher) updateGauges(machine string) {
	if stats, err := p.store.Stats(); err == nil {
		p.recorder.SetStoredNodes(int64(stats.Count), stats.Bytes)
	}
	if count, err := p.db.Count(machine); err == nil {
		p.recorder.SetMachineBuilds(machine, count)
	}
}

// Tag points machine@name at the build
func (p *Publisher) Tag(build model.Build, name string) error {
	unlock := p.machines.lock(build.Machine)
	defer unlock()
	return p.store.Tag(build, name)
}

// Untag drops machine@name
func (p *Publisher) Untag(machine, name string) error {
	unlock := p.machines.lock(machine)
	defer unlock()
	return p.store.Untag(machine, name)
}

// SetKeep flags or unflags a build as exempt from pruning. It holds
// the machine lock so the flag cannot land between a prune run's
// exemption recheck and the delete.
func (p *Publisher) SetKeep(build model.Build, keep bool) error {
	unlock := p.machines.lock(build.Machine)
	defer unlock()

	rec, err := p.db.Get(build)
	if err != nil {
		return err
	}
	rec.Keep = keep
	_, err = p.db.Save(rec)
	return err
}

// SetNote annotates a build; an empty note clears it
func (p *Publisher) SetNote(build model.Build, note string) error {
	rec, err := p.db.Get(build)
	if err != nil {
		return err
	}
	rec.Note = note
	_, err = p.db.Save(rec)
	return err
}
