package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateClassify(); err != nil {
		return err
	}
	if err := c.validateMigrate(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if c.Scanner.CheckpointInterval < 1 {
		return errors.New("scanner.checkpoint_interval must be at least 1")
	}
	if c.Scanner.PartialHashKiB < 1 {
		return errors.New("scanner.partial_hash_kib must be at least 1")
	}
	return nil
}

func (c *Config) validateClassify() error {
	if c.Classify.MinSongSizeMB < 0 {
		return errors.New("classify.min_song_size_mb must not be negative")
	}
	if c.Classify.MaxSampleSizeKiB < 0 {
		return errors.New("classify.max_sample_size_kib must not be negative")
	}
	return nil
}

func (c *Config) validateMigrate() error {
	if c.Migrate.WriteWorkers < 1 {
		return errors.New("migrate.write_workers must be at least 1")
	}
	if c.Migrate.MaxRetries < 0 {
		return errors.New("migrate.max_retries must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
