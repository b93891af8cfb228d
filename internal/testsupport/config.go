package testsupport

import (
	"path/filepath"
	"testing"

	"shellac/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Dedupe.MinFileSizeMB = 0
	cfgVal.Classify.MaxSampleSizeKiB = 0
	cfgVal.Migrate.RetryBackoffSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithExtensions overrides the allowed scan extensions on the test config.
func WithExtensions(extensions ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scanner.Extensions = extensions
	}
}

// WithCheckpointInterval overrides the scan checkpoint cadence.
func WithCheckpointInterval(interval int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scanner.CheckpointInterval = interval
	}
}

// WithWriteWorkers overrides the migration worker count.
func WithWriteWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Migrate.WriteWorkers = workers
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
