package config

import "fmt"

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll lists every key with its effective value. Secrets that are set
// show as asterisks.
func ShowAll(cfg Config) []KeyInfo {
	out := make([]KeyInfo, len(specs))
	for i, s := range specs {
		v := fmt.Sprint(s.extract(cfg))
		if s.secret && v != "" {
			v = secretMask
		}
		out[i] = KeyInfo{Key: s.key, EnvVar: s.env, Value: v, Secret: s.secret}
	}
	return out
}

const secretMask = "********"

// SetKey writes a config key to the config file, or to the OS keychain for
// secrets.
func SetKey(key, value string) error {
	return setKeyWith(newFileBackend(ConfigFilePath()), NewKeychain(), key, value)
}

func setKeyWith(b ConfigBackend, kc SecretStore, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q (see `jobtrack config show`)", key)
	}
	if s.secret {
		if err := kc.Set(KeyringService, key, value); err != nil {
			return fmt.Errorf("storing %s in keychain: %w", key, err)
		}
		return nil
	}
	v, err := s.coerce(value)
	if err != nil {
		return err
	}
	return b.Store(key, v)
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
