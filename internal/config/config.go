package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Blob    BlobConfig
	Auth    AuthConfig
	Client  ClientConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
	// PublicURL prefixes attachment URLs. Empty means http://127.0.0.1:<port>.
	PublicURL string
}

type StorageConfig struct {
	Driver      string // sqlite or postgres
	DataDir     string
	PostgresDSN string
}

type BlobConfig struct {
	// Dir holds uploaded attachments. Empty means <data_dir>/files.
	Dir string
}

type AuthConfig struct {
	SessionTTL      string
	SignInPerMinute int
	// SweepSchedule is a cron expression for purging expired sessions.
	SweepSchedule string
}

type ClientConfig struct {
	// ServerURL is the backend the CLI talks to. Empty means the local server.
	ServerURL string
}

type LogConfig struct {
	Level string
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultSessionTTL = 30 * 24 * time.Hour

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{Driver: DriverSQLite, DataDir: defaultDataDir()},
		Auth:    AuthConfig{SessionTTL: "720h", SignInPerMinute: 10, SweepSchedule: "@hourly"},
		Log:     LogConfig{Level: "info"},
	}
}

// LocalURL is the address the server listens on.
func (c Config) LocalURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)
}

func (c Config) PublicBaseURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	return c.LocalURL()
}

func (c Config) ServerURL() string {
	if c.Client.ServerURL != "" {
		return strings.TrimRight(c.Client.ServerURL, "/")
	}
	return c.LocalURL()
}

func (c Config) BlobDir() string {
	if c.Blob.Dir != "" {
		return c.Blob.Dir
	}
	return filepath.Join(c.Storage.DataDir, "files")
}

// SessionTTL parses auth.session_ttl, falling back to 30 days.
func (c Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Auth.SessionTTL)
	if err != nil || d <= 0 {
		return defaultSessionTTL
	}
	return d
}

// Load reads configuration in increasing priority: defaults, the YAML file
// at ConfigFilePath, a .env file in the working directory, JOBTRACK_*
// environment variables. Secrets not set by then are read from the OS
// keychain (service "jobtrack", account = key name).
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadWith(newFileBackend(ConfigFilePath()), NewKeychain())
}

func loadWith(b ConfigBackend, kc SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applySecrets(cfg *Config, kc SecretStore) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get(KeyringService, s.key); err == nil && v != "" {
			s.apply(cfg, strings.TrimSpace(v))
		}
	}
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be 1..65535, got %d", cfg.Server.Port)
	}
	switch cfg.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return errors.New("missing required config: storage.postgres_dsn. " +
				"Set it via environment variable JOBTRACK_STORAGE_POSTGRES_DSN " +
				"or the OS keychain (service: jobtrack, account: storage.postgres_dsn)")
		}
	default:
		return fmt.Errorf("invalid config: storage.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, cfg.Storage.Driver)
	}
	return nil
}
