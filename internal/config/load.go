package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file next to the binary or in the working directory.
	// Missing file is fine; a malformed one is not.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with KOKORO_ prefix override everything, e.g.
	// KOKORO_SERVER_PORT, KOKORO_WORKER_POLL_INTERVAL.
	v.SetEnvPrefix("KOKORO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.path", "data/jobs.db")
	v.SetDefault("worker.count", 1)
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("worker.heartbeat_interval", "10s")
	v.SetDefault("worker.stale_after", "60s")
	v.SetDefault("audio.tts_command", "kokoro-tts")
	v.SetDefault("audio.ffmpeg_path", "ffmpeg")
	v.SetDefault("audio.work_dir", "data/work")
	v.SetDefault("cleanup.interval", "1h")
	v.SetDefault("cleanup.retention_days", 7)
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var invalid []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config validation failed: %s", strings.Join(invalid, ", "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
