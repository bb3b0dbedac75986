//go:build darwin

package config

import (
	"fmt"
	"os/exec"
	"strings"
)

type darwinKeychain struct{}

// NewKeychain returns the login Keychain, accessed through the security CLI.
func NewKeychain() Keychain { return darwinKeychain{} }

func (darwinKeychain) Get(service, account string) (string, error) {
	out, err := exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
	if err != nil {
		return "", fmt.Errorf("keychain lookup %s/%s: %w", service, account, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (darwinKeychain) Set(service, account, value string) error {
	out, err := exec.Command(
		"security", "add-generic-password",
		"-U",
		"-s", service,
		"-a", account,
		"-w", value,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("keychain write %s/%s: %w: %s", service, account, err, strings.TrimSpace(string(out)))
	}
	return nil
}
