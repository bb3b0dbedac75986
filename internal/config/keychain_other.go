//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// secretFile is the Keychain stand-in off macOS: a 0600 JSON document
// mapping service to account to value.
type secretFile struct {
	path string
}

// NewKeychain returns the secrets file under $XDG_DATA_HOME/archai.
func NewKeychain() Keychain { return secretFile{path: secretsFilePath()} }

func secretsFilePath() string {
	return xdgPath("XDG_DATA_HOME", ".local/share", "archai", "secrets.json")
}

type secretDoc map[string]map[string]string

func (k secretFile) read() (secretDoc, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}
	doc := secretDoc{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", k.path, err)
	}
	return doc, nil
}

func (k secretFile) Get(service, account string) (string, error) {
	doc, err := k.read()
	if err != nil {
		return "", fmt.Errorf("secret store unavailable: %w", err)
	}
	val, ok := doc[service][account]
	if !ok {
		return "", fmt.Errorf("no secret for %s/%s", service, account)
	}
	return val, nil
}

func (k secretFile) Set(service, account, value string) error {
	doc, err := k.read()
	if os.IsNotExist(err) {
		doc, err = secretDoc{}, nil
	}
	if err != nil {
		return err
	}
	if doc[service] == nil {
		doc[service] = map[string]string{}
	}
	doc[service][account] = value

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(k.path, out)
}
