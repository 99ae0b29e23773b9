package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runger/snapc/internal/snapd"
)

// LoadAuthData reads stored credentials. A missing file yields nil, nil.
func LoadAuthData(path string) (*snapd.AuthData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read auth file: %w", err)
	}

	var auth snapd.AuthData
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse auth file: %w", err)
	}
	if auth.Macaroon == "" {
		return nil, nil
	}
	return &auth, nil
}

// SaveAuthData writes credentials readable only by the owner.
func SaveAuthData(path string, auth *snapd.AuthData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create auth directory: %w", err)
	}

	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to marshal auth data: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write auth file: %w", err)
	}
	return nil
}

// RemoveAuthData deletes stored credentials; a missing file is not an error.
func RemoveAuthData(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove auth file: %w", err)
	}
	return nil
}
