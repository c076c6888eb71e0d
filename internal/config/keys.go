package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "JOBTRACK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.public_url", typ: kString, env: "JOBTRACK_SERVER_PUBLIC_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.PublicURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.PublicURL },
	},
	{
		key: "storage.driver", typ: kString, env: "JOBTRACK_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "JOBTRACK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.postgres_dsn", typ: kString, env: "JOBTRACK_STORAGE_POSTGRES_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.PostgresDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PostgresDSN },
	},
	{
		key: "blob.dir", typ: kString, env: "JOBTRACK_BLOB_DIR",
		apply:   func(cfg *Config, v any) { cfg.Blob.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Dir },
	},
	{
		key: "auth.session_ttl", typ: kString, env: "JOBTRACK_AUTH_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.SessionTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SessionTTL },
	},
	{
		key: "auth.signin_per_minute", typ: kInt, env: "JOBTRACK_AUTH_SIGNIN_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.Auth.SignInPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Auth.SignInPerMinute },
	},
	{
		key: "auth.sweep_schedule", typ: kString, env: "JOBTRACK_AUTH_SWEEP_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Auth.SweepSchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SweepSchedule },
	},
	{
		key: "client.server_url", typ: kString, env: "JOBTRACK_CLIENT_SERVER_URL",
		apply:   func(cfg *Config, v any) { cfg.Client.ServerURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.ServerURL },
	},
	{
		key: "log.level", typ: kString, env: "JOBTRACK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// coerce converts a value read from YAML or the command line to the key's
// type. YAML numbers decode as int or float64; strings are parsed.
func (s keySpec) coerce(raw any) (any, error) {
	switch s.typ {
	case kInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case float64:
			if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
				return nil, fmt.Errorf("%s: %v is not an integer", s.key, v)
			}
			return int(v), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%s: invalid integer %q", s.key, v)
			}
			return i, nil
		default:
			return nil, fmt.Errorf("%s: unexpected %T", s.key, raw)
		}
	default:
		if str, ok := raw.(string); ok {
			return str, nil
		}
		return fmt.Sprint(raw), nil
	}
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// applyBackend copies every non-secret key present in b into cfg.
func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok := b.Lookup(s.key)
		if !ok {
			continue
		}
		v, err := s.coerce(raw)
		if err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.coerce(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s: %v\n", s.env, err)
			continue
		}
		s.apply(cfg, v)
	}
}
