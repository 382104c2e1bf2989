// Package config loads and persists provider configuration for polychat.
// Configuration lives in ~/.polychat/config.yaml with 0600 permissions
// since it can hold API keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"polychat/internal/secrets"
)

const (
	dirName  = ".polychat"
	fileName = "config.yaml"
)

// Kind identifies a provider family. Each family has its own wire
// convention but satisfies the same streaming contract.
type Kind string

const (
	KindGoogle    Kind = "google"
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
)

// envKeyFor maps a provider kind to the conventional API-key variable,
// used as a fallback when the config entry has no key of its own.
var envKeyFor = map[Kind]string{
	KindGoogle:    "GOOGLE_API_KEY",
	KindAnthropic: "ANTHROPIC_API_KEY",
	KindOpenAI:    "OPENAI_API_KEY",
}

// Provider is one named provider entry. ServiceAccountFile is an
// alternative credential path for google providers: a service-account JSON
// file used for OAuth bearer auth when no API key is set.
type Provider struct {
	Kind               Kind               `yaml:"kind"`
	APIKey             string             `yaml:"api_key,omitempty"`
	EncryptedAPIKey    *secrets.Encrypted `yaml:"encrypted_api_key,omitempty"`
	ServiceAccountFile string             `yaml:"service_account_file,omitempty"`
	BaseURL            string             `yaml:"base_url,omitempty"`
	DefaultModel       string             `yaml:"default_model,omitempty"`
}

// Config is the full on-disk configuration.
type Config struct {
	DefaultProvider string               `yaml:"default_provider,omitempty"`
	Providers       map[string]*Provider `yaml:"providers,omitempty"`
}

// Dir returns the configuration directory path.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dirName)
}

func configPath() string {
	return filepath.Join(Dir(), fileName)
}

// Load reads the configuration from disk. A missing file yields an empty
// config, not an error.
func Load() (*Config, error) {
	cfg := &Config{Providers: map[string]*Provider{}}

	data, err := os.ReadFile(configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]*Provider{}
	}
	return cfg, nil
}

// Save persists the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0o600)
}

// Require returns the named provider entry or a descriptive error.
func (c *Config) Require(name string) (*Provider, error) {
	p, ok := c.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not found in config, add it with: polychat config set %s", name, name)
	}
	return p, nil
}

// ResolveName picks the provider to use: the explicit one when given,
// otherwise the configured default.
func (c *Config) ResolveName(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if c.DefaultProvider != "" {
		return c.DefaultProvider, nil
	}
	return "", fmt.Errorf("no provider selected and no default configured: use --provider or: polychat config set <name> --default")
}

// InferKind guesses the provider kind from its name, so that
// "config set openai" works without an explicit --kind.
func InferKind(name string) (Kind, bool) {
	switch Kind(strings.ToLower(name)) {
	case KindGoogle, KindAnthropic, KindOpenAI:
		return Kind(strings.ToLower(name)), true
	}
	return "", false
}

// ResolveKey returns the provider's API key: the plain key if present,
// then the encrypted key (decrypted with the passphrase from passphraseEnv),
// then the kind's conventional environment variable.
func (p *Provider) ResolveKey(passphraseEnv string) (string, error) {
	if p.APIKey != "" {
		return p.APIKey, nil
	}
	if p.EncryptedAPIKey != nil {
		passphrase, err := secrets.PassphraseFromEnv(passphraseEnv)
		if err != nil {
			return "", err
		}
		return secrets.Decrypt(passphrase, p.EncryptedAPIKey)
	}
	if env := envKeyFor[p.Kind]; env != "" {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("no API key configured for this %s provider", p.Kind)
}
