package config

import (
	"fmt"
)

// KeyInfo is one row of `archai config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll lists every setting of cfg. Secrets only report whether they
// are set.
func ShowAll(cfg Config) []KeyInfo {
	out := make([]KeyInfo, 0, len(settings))
	for _, s := range settings {
		v := s.value(&cfg)
		switch {
		case s.secret() && v != "":
			v = "(set)"
		case s.secret():
			v = "(unset)"
		}
		out = append(out, KeyInfo{Key: s.key, EnvVar: s.envVar(), Value: v})
	}
	return out
}

// SetKey persists one setting. Secrets go to the platform secret store,
// everything else to the config backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), NewKeychain(), key, value)
}

func setKeyWith(b ConfigBackend, kc Keychain, key, value string) error {
	s, ok := lookupSetting(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret() {
		if err := kc.Set(secretService, s.account, value); err != nil {
			return fmt.Errorf("storing %s: %w", key, err)
		}
		return nil
	}

	// Parse through a scratch Config so bad integers fail before writing.
	var scratch Config
	if err := s.assign(&scratch, value); err != nil {
		return err
	}
	if s.num != nil {
		return b.SetInt(key, *s.num(&scratch))
	}
	return b.SetString(key, value)
}

// ValidKeys returns every settable key in display order.
func ValidKeys() []string {
	keys := make([]string, len(settings))
	for i, s := range settings {
		keys[i] = s.key
	}
	return keys
}
