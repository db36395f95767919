package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const identityFileName = "IDENTITY.md"

const defaultIdentity = `# Identity

You are a friendly conversational partner. Respond naturally and concisely.
`

// LoadIdentity reads the operator persona from <dataDir>/IDENTITY.md,
// creating it with the default text on first use.
func LoadIdentity(dataDir string) (string, error) {
	path := filepath.Join(dataDir, identityFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read identity: %w", err)
	}
	if err := SaveIdentity(dataDir, defaultIdentity); err != nil {
		return "", err
	}
	return defaultIdentity, nil
}

// SaveIdentity replaces the persona file.
func SaveIdentity(dataDir, content string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	path := filepath.Join(dataDir, identityFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
