package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigBackend is where non-secret settings persist between runs.
type ConfigBackend interface {
	Lookup(key string) (any, bool)
	Store(key string, val any) error
}

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share", "jobtrack-data"), "jobtrack")
}

// ConfigFilePath is $XDG_CONFIG_HOME/jobtrack/config.yaml.
func ConfigFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "", "."), "jobtrack", "config.yaml")
}

// xdgDir resolves an XDG base directory: the env var if set, else
// $HOME/<home>[/<sub>], else fallback.
func xdgDir(env, home, sub, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(h, home, sub)
}

// yamlFile keeps settings grouped by section:
//
//	server:
//	  port: 4100
//	log:
//	  level: debug
//
// Flat dotted keys ("server.port: 4100") are accepted on read and rewritten
// in sectioned form on the next save.
type yamlFile struct {
	path     string
	sections map[string]map[string]any
}

func newFileBackend(path string) *yamlFile {
	f := &yamlFile{path: path, sections: map[string]map[string]any{}}
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		f.decode(raw)
	}
	return f
}

func (f *yamlFile) decode(raw []byte) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", f.path, err)
		return
	}
	for k, v := range doc {
		if section, field, ok := strings.Cut(k, "."); ok {
			f.put(section, field, v)
			continue
		}
		if m, ok := v.(map[string]any); ok {
			for field, fv := range m {
				f.put(k, field, fv)
			}
		}
	}
}

func (f *yamlFile) put(section, field string, v any) {
	m, ok := f.sections[section]
	if !ok {
		m = map[string]any{}
		f.sections[section] = m
	}
	m[field] = v
}

func (f *yamlFile) Lookup(key string) (any, bool) {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return nil, false
	}
	v, ok := f.sections[section][field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Store sets key and rewrites the whole file atomically.
func (f *yamlFile) Store(key string, val any) error {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("config key %q has no section", key)
	}
	f.put(section, field, val)

	out, err := yaml.Marshal(f.sections)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
