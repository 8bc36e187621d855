/*
Package config handles loading and validating application configuration
from environment variables. All values have sensible defaults so the
application can start with zero environment setup during local development.
*/
package config

import (
	"context"
	"fmt"
	"log/slog" // slog = structured logging library
	"os"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
)

// Config struct holds all configuration values for the application.
// values are read once at startup and passed through the app via dependency injection.
// no global config variable is used. callers receive a *Config explicitly.
type Config struct {
	// Port is the TCP port the HTTP server listens on
	Port string `env:"PORT,default=8080"`

	// the file path to the SQLite database file
	DBPath string `env:"DB_PATH,default=./data/assista.db"`

	// the base directory where provisioning log files are written.
	// one log file per provisioning run, named by slug.
	LogRoot string `env:"LOG_ROOT,default=./data/logs"`

	// LogFormat controls the output format of slog
	// accepted values: "json" (default) | "text"
	LogFormat string `env:"LOG_FORMAT,default=json"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// the two upstream repositories, only the branch changes per request
	SourceRepositoryURL      string `env:"SOURCE_REPO_URL,default=https://github.com/odoo/odoo.git"`
	EnvironmentRepositoryURL string `env:"ENVIRONMENT_REPO_URL,default=https://github.com/CybrosysAssista/Odoo-venv.git"`

	// GitBinary is the git executable, looked up on PATH when not absolute
	GitBinary string `env:"GIT_BINARY,default=git"`

	// GitExtraEnv is a JSON object of extra environment variables for clone processes,
	// eg {"GIT_SSL_CAINFO":"/etc/ssl/corp.pem"}
	GitExtraEnv string `env:"GIT_EXTRA_ENV"`

	// CloneBackend selects how git runs: "exec" (local process) or "docker" (ephemeral container)
	CloneBackend string `env:"CLONE_BACKEND,default=exec"`

	// CloneImage is the image used by the docker backend
	CloneImage string `env:"CLONE_IMAGE,default=alpine/git:latest"`

	// per-stage wall clock deadlines, 0 disables the deadline of that stage.
	// the source tree is large, the environment is a small prebuilt tree.
	SourceTimeout      time.Duration `env:"SOURCE_TIMEOUT,default=10m"`
	EnvironmentTimeout time.Duration `env:"ENVIRONMENT_TIMEOUT,default=2m"`

	// KillGrace is the time between SIGTERM and SIGKILL when a clone is terminated
	KillGrace time.Duration `env:"KILL_GRACE,default=5s"`

	// ProgressThrottle is the minimum spacing of progress events within one phase
	ProgressThrottle time.Duration `env:"PROGRESS_THROTTLE,default=500ms"`

	// share of the overall progress bar per stage
	SourceWeight      int `env:"SOURCE_WEIGHT,default=70"`
	EnvironmentWeight int `env:"ENVIRONMENT_WEIGHT,default=30"`

	// the sweeper removes staging leftovers older than SweepMaxAge every SweepInterval
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=10m"`
	SweepMaxAge   time.Duration `env:"SWEEP_MAX_AGE,default=1h"`

	// CORSOrigin is the allowed origin of browser clients
	CORSOrigin string `env:"CORS_ORIGIN,default=*"`
}

// Load reads configuration from environment variables and returns a populated Config.
// missing variables fall back to the defaults in the struct tags.
func Load(ctx context.Context) (*Config, error) {
	var config Config
	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to process environment configuration: %w", err)
	}
	if config.CloneBackend != "exec" && config.CloneBackend != "docker" {
		return nil, fmt.Errorf("CLONE_BACKEND must be 'exec' or 'docker', got %q", config.CloneBackend)
	}
	return &config, nil
}

// NewLogger constructs a *slog.Logger based on the LogFormat field of the config.
// "text" produces human-readable output for local development,
// any other value (including "json") produces structured JSON output.
func (config *Config) NewLogger() *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		// AddSource adds the file name and line number to each log record.
		AddSource: true,
		Level:     parseLevel(config.LogLevel),
	}

	if config.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// WithLogger attaches logger to ctx so deeper packages can log through clog.FromContext.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return clog.WithLogger(ctx, clog.NewLogger(logger))
}

func parseLevel(level string) slog.Level {
	var parsedLevel slog.Level
	if err := parsedLevel.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return parsedLevel
}
