package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the timer hub's runtime parameters.
type Config struct {
	// ListenAddr is the TCP address the websocket server binds to.
	ListenAddr string `yaml:"listen_addr"`
	// DatabaseFile is the path to the SQLite file storing timers. Empty
	// disables persistence and the hub runs in-memory only.
	DatabaseFile string `yaml:"database_file"`
	// SnoozeDuration is the delay applied when a snooze request carries none.
	SnoozeDuration time.Duration `yaml:"snooze_duration"`
	// PreExpireWarning is the lead time for pre-expiry warning events applied
	// to new timers. Zero disables warnings.
	PreExpireWarning time.Duration `yaml:"pre_expire_warning"`
	// Retention is how long finished timers stay in the database before the
	// purge loop removes them.
	Retention time.Duration `yaml:"retention"`
	// PurgeInterval is how often the retention purge runs.
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

const (
	// DefaultConfigFilename is the default filename for hub settings.
	DefaultConfigFilename = "timer-hub-settings.yaml"

	// DefaultListenAddr is the default websocket listen address.
	DefaultListenAddr = ":8090"

	// DefaultDatabaseFilename is the default SQLite database filename.
	DefaultDatabaseFilename = "timer-hub.db"

	// DefaultSnoozeDuration is the default snooze delay.
	DefaultSnoozeDuration = 9 * time.Minute

	// DefaultRetention is how long finished timers are kept by default.
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultPurgeInterval is how often the retention purge runs by default.
	DefaultPurgeInterval = 24 * time.Hour

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeWarning is returned when the warning lead time is negative.
	errNegativeWarning = errors.New("pre-expire warning must not be negative")
)

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		ListenAddr:       DefaultListenAddr,
		DatabaseFile:     DefaultDatabaseFilename,
		SnoozeDuration:   DefaultSnoozeDuration,
		Retention:        DefaultRetention,
		PurgeInterval:    DefaultPurgeInterval,
		PreExpireWarning: 0,
	}
}

// Load reads configuration from the provided path and validates essential
// fields. A missing file at the default path yields the defaults so the hub
// starts without any setup.
func Load(path string) (*Config, error) {
	usedDefault := path == ""
	if usedDefault {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if usedDefault && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings, filling defaults for omitted fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.SnoozeDuration <= 0 {
		cfg.SnoozeDuration = DefaultSnoozeDuration
	}

	if cfg.PreExpireWarning < 0 {
		return errNegativeWarning
	}

	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = DefaultPurgeInterval
	}

	return nil
}
