package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Audio    AudioConfig    `mapstructure:"audio" validate:"required"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup" validate:"required"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. Parent directories are created on
	// open.
	Path string `mapstructure:"path" validate:"required"`
}

// WorkerConfig tunes the job-processing workers.
type WorkerConfig struct {
	// Count is how many workers the process runs. Zero disables in-process
	// workers, for deployments that run cmd/worker separately.
	Count int `mapstructure:"count" validate:"gte=0,lte=16"`

	// PollInterval is how long a worker sleeps between claim attempts when
	// the queue is empty.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`

	// HeartbeatInterval is how often a worker refreshes its claim on the
	// job it is processing. Must be well under StaleAfter.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"required,gt=0,ltfield=StaleAfter"`

	// StaleAfter is how long a claim may go without a heartbeat before
	// other workers treat the job as orphaned and reclaim it.
	StaleAfter time.Duration `mapstructure:"stale_after" validate:"required,gt=0"`
}

// AudioConfig points at the external audio tooling and scratch space.
type AudioConfig struct {
	// TTSCommand is the text-to-speech binary workers shell out to.
	TTSCommand string `mapstructure:"tts_command" validate:"required"`

	// FFmpegPath is the ffmpeg binary used to encode final outputs.
	FFmpegPath string `mapstructure:"ffmpeg_path" validate:"required"`

	// WorkDir holds per-job temp artifacts between runs; resumed jobs
	// reuse the chapter audio found here.
	WorkDir string `mapstructure:"work_dir" validate:"required"`
}

// CleanupConfig controls retention of finished jobs.
type CleanupConfig struct {
	// Interval is how often the cleanup sweep runs. Zero disables it.
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`

	// RetentionDays is how long completed jobs are kept before the sweep
	// removes them.
	RetentionDays int `mapstructure:"retention_days" validate:"required,gt=0"`
}
