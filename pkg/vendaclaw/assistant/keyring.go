// Package assistant – keyring.go provides credential storage using the
// operating system's native keyring (Linux: Secret Service/GNOME Keyring,
// macOS: Keychain, Windows: Credential Manager).
//
// Priority for resolving the generator API key:
//  1. Environment variable (VENDACLAW_API_KEY, OPENAI_API_KEY)
//  2. OS keyring (encrypted by the OS, requires user session)
//  3. .env file (loaded by godotenv)
//  4. config.yaml value (least secure, plaintext on disk)
package assistant

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "vendaclaw"

	// keyringAPIKey is the key name for the generator API key.
	keyringAPIKey = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring. Returns empty string
// if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__vendaclaw_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveAPIKey resolves the generator API key using the priority chain:
// env var → keyring → config value. Updates the config in place.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	// Env wins: resolveSecrets already copied VENDACLAW_API_KEY or
	// OPENAI_API_KEY into the config during load.
	if cfg.Generator.APIKey != "" && !IsEnvReference(cfg.Generator.APIKey) {
		logger.Debug("API key loaded from config/env")
		return
	}

	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.Generator.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}

	logger.Warn("no API key found. Set one with: vendaclaw config set-key")
}

// MigrateKeyToKeyring moves an API key from config/env into the OS keyring.
func MigrateKeyToKeyring(apiKey string, logger *slog.Logger) error {
	if err := StoreKeyring(keyringAPIKey, apiKey); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	logger.Info("API key stored in OS keyring",
		"service", keyringService,
		"hint", "You can now remove it from .env and config.yaml")
	return nil
}

// ReadPassword prompts for a secret without echoing it to the terminal.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
