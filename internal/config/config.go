package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"
)

// Config represents the daemon configuration
type Config struct {
	General GeneralConfig `toml:"general"`
	Logging LoggingConfig `toml:"logging"`
	Storage StorageConfig `toml:"storage"`
	Roster  RosterConfig  `toml:"roster"`
	Dynamic DynamicConfig `toml:"dynamic"`
	Metrics MetricsConfig `toml:"metrics"`
	UI      UIConfig      `toml:"ui"`
}

// GeneralConfig contains general settings
type GeneralConfig struct {
	DataDir string `toml:"data_dir"`
	// Domain is the XMPP domain sessions are bound to
	Domain string `toml:"domain"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

// StorageConfig selects the roster store
type StorageConfig struct {
	// Backend is "sqlite" or "memory"
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// RosterConfig tunes roster processing
type RosterConfig struct {
	PushChunkSize   int    `toml:"push_chunk_size"`
	AnonymousMarker string `toml:"anonymous_marker"`
}

// DynamicConfig configures where dynamic contacts come from
type DynamicConfig struct {
	// Directory is a TOML contact directory, empty to disable
	Directory string `toml:"directory"`

	// RedisAddr stores dynamic extension data in redis when set,
	// otherwise the roster store keeps it
	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`

	PluginDir string `toml:"plugin_dir"`

	// Settings are passed to every provider with each request
	Settings map[string]string `toml:"settings"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Namespace string `toml:"namespace"`
}

// UIConfig contains terminal output settings
type UIConfig struct {
	Theme    string `toml:"theme"`
	ThemeDir string `toml:"theme_dir"`
}

// Account is a user allowed to authenticate
type Account struct {
	JID          string `toml:"jid"`
	PasswordHash string `toml:"password_hash"`
}

// AccountsConfig contains all accounts
type AccountsConfig struct {
	Accounts []Account `toml:"accounts"`
}

// Hashes returns the password hash of every account keyed by bare JID
func (a *AccountsConfig) Hashes() map[string]string {
	out := make(map[string]string, len(a.Accounts))
	for _, acc := range a.Accounts {
		out[acc.JID] = acc.PasswordHash
	}
	return out
}

// SetPassword adds the account or replaces its password
func (a *AccountsConfig) SetPassword(jid, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	for i := range a.Accounts {
		if a.Accounts[i].JID == jid {
			a.Accounts[i].PasswordHash = string(hash)
			return nil
		}
	}
	a.Accounts = append(a.Accounts, Account{JID: jid, PasswordHash: string(hash)})
	return nil
}

// Paths holds the XDG-compliant paths for the daemon
type Paths struct {
	ConfigDir string
	DataDir   string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			Domain: "localhost",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: false,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Roster: RosterConfig{
			PushChunkSize:   20,
			AnonymousMarker: "anon",
		},
		Dynamic: DynamicConfig{
			RedisPrefix: "rosterd:extra",
			Settings:    map[string]string{},
		},
		Metrics: MetricsConfig{
			Namespace: "rosterd",
		},
		UI: UIConfig{
			Theme: "rainbow",
		},
	}
}

// GetPaths returns XDG-compliant paths for the daemon
func GetPaths() (*Paths, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	return &Paths{
		ConfigDir: filepath.Join(configDir, "rosterd"),
		DataDir:   filepath.Join(dataDir, "rosterd"),
	}, nil
}

// DefaultPath returns the location of config.toml
func DefaultPath() (string, error) {
	paths, err := GetPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(paths.ConfigDir, "config.toml"), nil
}

// Load reads the configuration from path, or from the XDG config directory
// when path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(paths.ConfigDir, "config.toml")
	}

	cfg := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if cfg.General.DataDir == "" {
		cfg.General.DataDir = paths.DataDir
	} else {
		cfg.General.DataDir = expandPath(cfg.General.DataDir)
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(cfg.General.DataDir, "roster.db")
	} else {
		cfg.Storage.Path = expandPath(cfg.Storage.Path)
	}

	if cfg.Dynamic.PluginDir == "" {
		cfg.Dynamic.PluginDir = filepath.Join(cfg.General.DataDir, "plugins")
	} else {
		cfg.Dynamic.PluginDir = expandPath(cfg.Dynamic.PluginDir)
	}
	cfg.Dynamic.Directory = expandPath(cfg.Dynamic.Directory)
	if cfg.Dynamic.Settings == nil {
		cfg.Dynamic.Settings = map[string]string{}
	}

	if cfg.UI.ThemeDir == "" {
		cfg.UI.ThemeDir = filepath.Join(paths.ConfigDir, "themes")
	} else {
		cfg.UI.ThemeDir = expandPath(cfg.UI.ThemeDir)
	}

	if cfg.Logging.File != "" {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.General.Domain == "" {
		return fmt.Errorf("general.domain must be set")
	}
	return nil
}

// AccountsPath returns the accounts file next to the config file at path
func AccountsPath(configPath string) (string, error) {
	if configPath == "" {
		var err error
		configPath, err = DefaultPath()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(filepath.Dir(configPath), "accounts.toml"), nil
}

// LoadAccounts loads account configurations. A missing file yields no
// accounts.
func LoadAccounts(path string) (*AccountsConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &AccountsConfig{Accounts: []Account{}}, nil
	}

	var accounts AccountsConfig
	if _, err := toml.DecodeFile(path, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}
	return &accounts, nil
}

// SaveAccounts saves account configurations
func SaveAccounts(path string, accounts *AccountsConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create accounts file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(accounts); err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
