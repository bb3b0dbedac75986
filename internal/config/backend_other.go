//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

func defaultDataDir() string {
	return xdgPath("XDG_DATA_HOME", ".local/share", "archai")
}

func configFilePath() string {
	return xdgPath("XDG_CONFIG_HOME", ".config", "archai", "config.json")
}

func apiKeyHint() string {
	return " or the secrets file " + secretsFilePath()
}

// fileBackend keeps settings as one flat JSON object. Values stay raw
// until read so a hand-edited file with "port": "4300" still parses.
type fileBackend struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
}

func newPlatformBackend() ConfigBackend {
	b := &fileBackend{path: configFilePath(), values: map[string]json.RawMessage{}}
	if err := b.load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring config file %s: %v\n", b.path, err)
		b.values = map[string]json.RawMessage{}
	}
	return b
}

func (b *fileBackend) load() error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &b.values)
}

func (b *fileBackend) lookup(key string) (json.RawMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.values[key]
	return raw, ok
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	raw, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Numbers and booleans are returned in their JSON spelling.
		return string(raw), true, nil
	}
	return s, true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	raw, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	var i int
	if err := json.Unmarshal(raw, &i); err == nil {
		return i, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, true, fmt.Errorf("%s: stored value %s is not an integer", key, raw)
	}
	i, err := parseStoredInt(key, s)
	return i, true, err
}

func (b *fileBackend) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = raw
	return b.flush()
}

func (b *fileBackend) SetString(key, val string) error { return b.put(key, val) }

func (b *fileBackend) SetInt(key string, val int) error { return b.put(key, val) }

func (b *fileBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return b.flush()
}

// flush must be called with mu held.
func (b *fileBackend) flush() error {
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(b.path, data)
}
