package config

const (
	defaultDataDir             = "~/.local/share/shellac"
	defaultLogDir              = "~/.local/share/shellac/logs"
	defaultLibraryDir          = "~/library"
	defaultAPIBind             = "127.0.0.1:7512"
	defaultCheckpointInterval  = 100
	defaultPartialHashKiB      = 512
	defaultMinFileSizeMB       = 2
	defaultMinSongSizeMB       = 2
	defaultMaxSampleSizeKiB    = 512
	defaultWriteWorkers        = 4
	defaultMaxRetries          = 3
	defaultRetryBackoffSeconds = 2
	defaultUnknownArtist       = "Unknown Artist"
	defaultSinglesAlbum        = "Singles"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

func defaultExtensions() []string {
	return []string{".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg", ".wma"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			LibraryDir: defaultLibraryDir,
			APIBind:    defaultAPIBind,
		},
		Scanner: Scanner{
			Extensions:         defaultExtensions(),
			CheckpointInterval: defaultCheckpointInterval,
			PartialHashKiB:     defaultPartialHashKiB,
		},
		Dedupe: Dedupe{
			MinFileSizeMB: defaultMinFileSizeMB,
		},
		Classify: Classify{
			MinSongSizeMB:    defaultMinSongSizeMB,
			MaxSampleSizeKiB: defaultMaxSampleSizeKiB,
		},
		Migrate: Migrate{
			WriteWorkers:        defaultWriteWorkers,
			MaxRetries:          defaultMaxRetries,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			SkipDuplicates:      true,
			UnknownArtist:       defaultUnknownArtist,
			SinglesAlbum:        defaultSinglesAlbum,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
