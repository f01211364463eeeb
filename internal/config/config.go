package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Auth    AuthSettings    `yaml:"auth"`
	Poll    PollSettings    `yaml:"poll"`
	Bridge  BridgeSettings  `yaml:"bridge"`
	Host    HostSettings    `yaml:"host"`
	State   StateSettings   `yaml:"state"`
	Logging LoggingSettings `yaml:"logging"`
}

// AuthSettings selects the grant strategy for the asset. A username
// (with password) switches the connector to the password grant; with
// neither set it runs the authorization-code flow through the bridge.
type AuthSettings struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	Sandbox      bool   `yaml:"sandbox,omitempty"`
}

type PollSettings struct {
	SObject            string `yaml:"sobject"`
	ViewName           string `yaml:"view_name,omitempty"`
	CEFNameMap         string `yaml:"cef_name_map,omitempty"` // JSON object, original field -> CEF field
	FirstIngestionMax  int    `yaml:"first_ingestion_max"`
	ContainerCount     int    `yaml:"container_count"`
	StripRecencyFields bool   `yaml:"strip_recency_fields,omitempty"`
}

type BridgeSettings struct {
	Address     string `yaml:"address"`
	HandlerRoot string `yaml:"handler_root"`
}

type HostSettings struct {
	BaseURL   string `yaml:"base_url"`
	VerifyTLS bool   `yaml:"verify_tls"`
}

type StateSettings struct {
	Dir string `yaml:"dir,omitempty"` // defaults to <config dir>/state
}

type LoggingSettings struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func DefaultConfig() *Config {
	return &Config{
		Poll: PollSettings{
			SObject:           "Case",
			FirstIngestionMax: 10,
			ContainerCount:    10,
		},
		Bridge: BridgeSettings{
			Address:     ":8443",
			HandlerRoot: "/rest/handler/salesforce",
		},
		Host: HostSettings{
			BaseURL:   "https://127.0.0.1",
			VerifyTLS: false,
		},
		Logging: LoggingSettings{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "sf-connector"), nil
}

func ConfigPath() (string, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

func LoadFile(path string) (*Config, error) {
	// If config doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Save() error {
	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Holds client secrets, keep it owner-only
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Auth.Username != "" && c.Auth.Password == "" {
		return fmt.Errorf("password must be specified with a username")
	}
	return nil
}

// UsesPasswordGrant reports whether static credentials select the
// password grant instead of the authorization-code flow.
func (c *Config) UsesPasswordGrant() bool {
	return c.Auth.Username != ""
}

// ParseCEFNameMap decodes the configured field rename table. An empty
// setting yields an empty (non-nil) map.
func (c *Config) ParseCEFNameMap() (map[string]string, error) {
	nameMap := make(map[string]string)
	if c.Poll.CEFNameMap == "" {
		return nameMap, nil
	}
	if err := json.Unmarshal([]byte(c.Poll.CEFNameMap), &nameMap); err != nil {
		return nil, fmt.Errorf("failed to parse cef_name_map: %w", err)
	}
	return nameMap, nil
}

// StateDir resolves the per-asset state file directory, creating the
// default location under the config dir when unset.
func (c *Config) StateDir() (string, error) {
	if c.State.Dir != "" {
		return c.State.Dir, nil
	}
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "state"), nil
}
