package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ConfigBackend is where non-secret settings persist between runs. The
// macOS build keeps them in user defaults and every other platform uses a
// JSON file under the XDG config directory. Secrets never pass through a
// backend; they go to the Keychain.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// xdgPath resolves elems under the directory named by env, falling back to
// $HOME/fallback and finally to the working directory.
func xdgPath(env, fallback string, elems ...string) string {
	base := os.Getenv(env)
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, fallback)
		} else {
			base = "."
		}
	}
	return filepath.Join(append([]string{base}, elems...)...)
}

func parseStoredInt(key, raw string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: stored value %q is not an integer", key, raw)
	}
	return i, nil
}

// writeFileAtomic replaces path through a temp file in the same directory
// so a crash never leaves a truncated file behind. The result is 0600.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
