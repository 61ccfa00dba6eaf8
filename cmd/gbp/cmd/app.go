package cmd

import (
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/artifact"
	"github.com/enku/gentoo-build-publisher/pkg/config"
	"github.com/enku/gentoo-build-publisher/pkg/dlogger"
	"github.com/enku/gentoo-build-publisher/pkg/metrics"
	"github.com/enku/gentoo-build-publisher/pkg/publisher"
	"github.com/enku/gentoo-build-publisher/pkg/records"
	recordsbdgr "github.com/enku/gentoo-build-publisher/pkg/records/bdgr"
	"github.com/enku/gentoo-build-publisher/pkg/records/memory"
	"github.com/enku/gentoo-build-publisher/pkg/storage"
	"github.com/enku/gentoo-build-publisher/pkg/storage/localfs"
	"github.com/enku/gentoo-build-publisher/pkg/storage/sthree"
	"github.com/enku/gentoo-build-publisher/pkg/store"
	storebdgr "github.com/enku/gentoo-build-publisher/pkg/store/bdgr"
	"github.com/enku/gentoo-build-publisher/pkg/worker"
	workerstatus "github.com/enku/gentoo-build-publisher/pkg/worker/status"
)

// app wires settings into the component graph for one command run
type app struct {
	settings  *config.Settings
	logger    *zap.Logger
	store     *store.Store
	db        records.RecordDB
	publisher *publisher.Publisher
	worker    worker.Worker
	nats      *worker.NATSWorker
	registry  *prom.Registry
}

func newApp() (*app, error) {
	settings, err := config.NewFromEnv()
	if err != nil {
		return nil, err
	}
	logger := dlogger.MustGetLogger(settings.LogLevel)

	a := &app{
		settings: settings,
		logger:   logger,
		registry: prom.NewRegistry(),
	}
	if a.store, err = store.New(settings.StoragePath,
		store.Logger(logger),
		store.MetaBackend(storebdgr.New(filepath.Join(settings.StoragePath, "meta"))),
	); err != nil {
		return nil, err
	}
	if a.db, err = openRecords(settings); err != nil {
		a.store.Close()
		return nil, err
	}

	archive, err := openArchive(settings)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.publisher = publisher.New(a.store, a.db,
		publisher.Logger(logger),
		publisher.Recorder(metrics.NewRecorder(a.registry)),
		publisher.Retention(settings.RetainCount, settings.RetainDays),
		publisher.Fetcher(artifact.NewFetcher(
			artifact.FetchTimeout(settings.FetchTimeout),
			artifact.FetcherLogger(logger),
		)),
		publisher.Archive(archive),
	)

	runner := worker.NewRunner(a.publisher,
		worker.MaxAttempts(settings.WorkerMaxRetries),
		worker.OnFailure(a.publisher.RecordTaskFailure),
		worker.RunnerLogger(logger),
	)
	switch settings.WorkerBackend {
	case worker.BackendImmediate:
		a.worker = worker.NewImmediate(runner)
	case worker.BackendThread:
		a.worker = worker.NewThread(runner, settings.WorkerThreadWait)
	case worker.BackendNATS:
		a.nats, err = worker.NewNATS(settings.WorkerNatsURL, settings.WorkerNatsQueue,
			runner, worker.NATSLogger(logger))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.worker = a.nats
	default:
		a.Close()
		return nil, workerstatus.ErrUnknownBackend.WrapMessage("%q", settings.WorkerBackend)
	}
	return a, nil
}

func openRecords(settings *config.Settings) (records.RecordDB, error) {
	var db records.RecordDB
	switch settings.RecordsBackend {
	case "memory":
		db = memory.New()
	default:
		db = recordsbdgr.New(filepath.Join(settings.StoragePath, "records"))
	}
	return db, db.Initialize()
}

func openArchive(settings *config.Settings) (storage.Store, error) {
	switch settings.ArchiveBackend {
	case "localfs":
		return localfs.New(afero.NewBasePathFs(afero.NewOsFs(), settings.ArchivePath))
	case "s3":
		return sthree.New(sthree.Bucket(settings.ArchiveBucket)), nil
	}
	return nil, nil
}

func (a *app) Close() {
	if a.worker != nil {
		a.worker.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Sync()
}

// withApp runs one command against a freshly wired app
func withApp(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
