package config

import "strings"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScanner()
	c.normalizeMigrate()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []*string{
		&c.Paths.DataDir,
		&c.Paths.LogDir,
		&c.Paths.LibraryDir,
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeScanner() {
	normalized := make([]string, 0, len(c.Scanner.Extensions))
	for _, ext := range c.Scanner.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	if len(normalized) == 0 {
		normalized = defaultExtensions()
	}
	c.Scanner.Extensions = normalized

	if c.Scanner.CheckpointInterval <= 0 {
		c.Scanner.CheckpointInterval = defaultCheckpointInterval
	}
	if c.Scanner.PartialHashKiB <= 0 {
		c.Scanner.PartialHashKiB = defaultPartialHashKiB
	}
}

func (c *Config) normalizeMigrate() {
	if c.Migrate.WriteWorkers <= 0 {
		c.Migrate.WriteWorkers = defaultWriteWorkers
	}
	if c.Migrate.MaxRetries < 0 {
		c.Migrate.MaxRetries = defaultMaxRetries
	}
	if c.Migrate.RetryBackoffSeconds <= 0 {
		c.Migrate.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if strings.TrimSpace(c.Migrate.UnknownArtist) == "" {
		c.Migrate.UnknownArtist = defaultUnknownArtist
	}
	if strings.TrimSpace(c.Migrate.SinglesAlbum) == "" {
		c.Migrate.SinglesAlbum = defaultSinglesAlbum
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
