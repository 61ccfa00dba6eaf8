// Package config holds the process-wide settings, resolved once at
// startup and passed explicitly into each component.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of all environment variables consulted,
	// e.g. BUILD_PUBLISHER_STORAGE_PATH
	EnvPrefix = "BUILD_PUBLISHER"

	// DefaultArtifactName is the file name of the CI build artifact
	DefaultArtifactName = "build.tar.gz"
)

// Settings for the build publisher
type Settings struct {
	// StoragePath is the root of the build store on disk
	StoragePath string `mapstructure:"storage_path"`

	// ArtifactName is the artifact file name published by CI
	ArtifactName string `mapstructure:"artifact_name"`

	// FetchTimeout bounds a single artifact download attempt
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// RecordsBackend selects the Records implementation (memory, badger)
	RecordsBackend string `mapstructure:"records_backend"`

	// WorkerBackend selects the task orchestrator backend
	// (immediate, thread, nats)
	WorkerBackend string `mapstructure:"worker_backend"`

	// WorkerThreadWait makes the thread backend block until the task
	// completes (used by tests)
	WorkerThreadWait bool `mapstructure:"worker_thread_wait"`

	// WorkerNatsURL is the NATS server for the queue-backed worker
	WorkerNatsURL string `mapstructure:"worker_nats_url"`

	// WorkerNatsQueue is the JetStream stream/subject base name
	WorkerNatsQueue string `mapstructure:"worker_nats_queue"`

	// WorkerMaxRetries bounds the retries of transient task failures
	WorkerMaxRetries int `mapstructure:"worker_max_retries"`

	// RetainCount keeps at most this many prunable builds per machine
	// (0 disables count-based pruning)
	RetainCount int `mapstructure:"retain_count"`

	// RetainDays prunes builds submitted more than this many days ago
	// (0 disables age-based pruning)
	RetainDays int `mapstructure:"retain_days"`

	// ArchiveBackend mirrors raw pulled artifacts: "", "localfs" or "s3"
	ArchiveBackend string `mapstructure:"archive_backend"`

	// ArchivePath is the localfs archive directory
	ArchivePath string `mapstructure:"archive_path"`

	// ArchiveBucket is the S3 archive bucket
	ArchiveBucket string `mapstructure:"archive_bucket"`

	// LogLevel for the zap logger (none, info, debug)
	LogLevel string `mapstructure:"log_level"`
}

// New resolves settings from environment variables and an optional
// config file already loaded into the given viper instance
func New(v *viper.Viper) (*Settings, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// NewFromEnv resolves settings from the environment only
func NewFromEnv() (*Settings, error) {
	return New(viper.New())
}

// ArtifactURL resolves the download URL for a build artifact. A URL
// ending in "/" names the CI job directory and gets ArtifactName
// appended; anything else is taken as the full artifact URL.
func (s *Settings) ArtifactURL(base string) string {
	if strings.HasSuffix(base, "/") {
		return base + s.ArtifactName
	}
	return base
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage_path", "/var/lib/gbp")
	v.SetDefault("artifact_name", DefaultArtifactName)
	v.SetDefault("fetch_timeout", 10*time.Minute)
	v.SetDefault("records_backend", "badger")
	v.SetDefault("worker_backend", "thread")
	v.SetDefault("worker_thread_wait", false)
	v.SetDefault("worker_nats_url", "nats://localhost:4222")
	v.SetDefault("worker_nats_queue", "gbp")
	v.SetDefault("worker_max_retries", 5)
	v.SetDefault("retain_count", 0)
	v.SetDefault("retain_days", 0)
	v.SetDefault("archive_backend", "")
	v.SetDefault("archive_path", "")
	v.SetDefault("archive_bucket", "")
	v.SetDefault("log_level", "info")
}
