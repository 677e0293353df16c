package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	LedgerMemory  = "memory"
	LedgerLevelDB = "leveldb"

	LogFormatJSON = "json"
	LogFormatText = "text"
)

type LedgerConfig struct {
	// Backend is "memory" or "leveldb".
	Backend string `yaml:"backend"`
	// Path is the leveldb directory. Required for the leveldb backend.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig is the ammd daemon configuration.
type ServerConfig struct {
	// ListenAddr serves JSON-RPC over HTTP and websocket on the same port.
	ListenAddr  string       `yaml:"listen_addr"`
	MetricsAddr string       `yaml:"metrics_addr"`
	// WSOrigins lists browser origins allowed to open a websocket. Empty
	// admits only localhost; clients that send no Origin header are not
	// checked.
	WSOrigins   []string     `yaml:"ws_origins"`
	Ledger      LedgerConfig `yaml:"ledger"`
	Log         LogConfig    `yaml:"log"`
	// Faucet enables amm_fund. Never enable it on a ledger holding real value.
	Faucet bool `yaml:"faucet"`
}

// Default returns the configuration used for any field a file leaves out.
func Default() *ServerConfig {
	return &ServerConfig{
		ListenAddr:  "127.0.0.1:8645",
		MetricsAddr: "127.0.0.1:9645",
		Ledger:      LedgerConfig{Backend: LedgerMemory},
		Log:         LogConfig{Level: "info", Format: LogFormatJSON},
	}
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// over the defaults.
func LoadConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: listen_addr is required")
	}
	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerLevelDB:
		if c.Ledger.Path == "" {
			return errors.New("config: ledger.path is required for the leveldb backend")
		}
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != LogFormatJSON && c.Log.Format != LogFormatText {
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses the configured level name.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return level, fmt.Errorf("config: invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}
