//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.archai.app"

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", "archai")
	}
	return "archai-data"
}

func apiKeyHint() string {
	return " or the login Keychain (service " + secretService + ", account openrouter_api_key)"
}

// defaultsBackend stores settings in the user defaults database through
// the defaults(1) tool.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return defaultsBackend{domain: defaultsDomain}
}

// run invokes defaults with the domain inserted after the verb. The bool
// is false when the key does not exist, which defaults signals with
// exit status 1.
func (b defaultsBackend) run(verb string, args ...string) (string, bool, error) {
	argv := append([]string{verb, b.domain}, args...)
	out, err := exec.Command("defaults", argv...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return text, true, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && verb != "write":
		return "", false, nil
	default:
		return "", false, fmt.Errorf("defaults %s %s: %w (%s)", verb, strings.Join(args, " "), err, text)
	}
}

func (b defaultsBackend) GetString(key string) (string, bool, error) {
	return b.run("read", key)
}

func (b defaultsBackend) GetInt(key string) (int, bool, error) {
	raw, ok, err := b.run("read", key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := parseStoredInt(key, raw)
	return i, true, err
}

func (b defaultsBackend) SetString(key, val string) error {
	_, _, err := b.run("write", key, "-string", val)
	return err
}

func (b defaultsBackend) SetInt(key string, val int) error {
	_, _, err := b.run("write", key, "-int", strconv.Itoa(val))
	return err
}

// Delete treats a missing key as already deleted.
func (b defaultsBackend) Delete(key string) error {
	_, _, err := b.run("delete", key)
	return err
}
