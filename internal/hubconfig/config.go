// Package hubconfig loads the xhub node configuration from an INI file,
// the wire-pinned format the exchange protocol has always used for its
// wallet list.
package hubconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "xhub.conf"

// DefaultListenPort is the fixed TCP port the exchange coordinator listens on.
const DefaultListenPort = 30330

// Config holds all configuration for the xhub node.
type Config struct {
	// Network holds the listener settings.
	Network NetworkConfig

	// Storage holds local data directory settings.
	Storage StorageConfig

	// Logging holds logging settings.
	Logging LoggingConfig

	// Wallets is the raw, undecoded wallet list read from [Main] and its
	// per-wallet sections. WalletRegistry performs validation (base64
	// decode, 20-byte length check) and rejection.
	Wallets []RawWalletConfig
}

// NetworkConfig holds listener settings.
type NetworkConfig struct {
	ListenAddress string `ini:"listen_address"`
	ListenPort    int    `ini:"listen_port"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir string `ini:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `ini:"level"`
	File  string `ini:"file"`
}

// RawWalletConfig is one wallet section as read from the file, before
// WalletRegistry validates it.
type RawWalletConfig struct {
	Name    string
	Title   string
	Address string // base64, validated by WalletRegistry
	PubKey  string // optional hex-encoded compressed secp256k1 pubkey
}

// DefaultConfig returns a Config with sensible defaults and no wallets.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			ListenAddress: "0.0.0.0",
			ListenPort:    DefaultListenPort,
		},
		Storage: StorageConfig{
			DataDir: "~/.xhub",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadConfig loads configuration from an INI file under dataDir. If the
// file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	f, err := ini.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := f.Section("Network").MapTo(&cfg.Network); err != nil {
		return nil, fmt.Errorf("failed to parse [Network]: %w", err)
	}
	if err := f.Section("Storage").MapTo(&cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to parse [Storage]: %w", err)
	}
	if err := f.Section("Logging").MapTo(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to parse [Logging]: %w", err)
	}

	cfg.Wallets = readWallets(f)

	return cfg, nil
}

// readWallets parses [Main] ExchangeWallets and the per-wallet sections it
// names. Unknown keys within a wallet section are ignored; a wallet whose
// section is entirely missing simply yields an empty RawWalletConfig for
// WalletRegistry to reject.
func readWallets(f *ini.File) []RawWalletConfig {
	names := splitWalletList(f.Section("Main").Key("ExchangeWallets").String())
	out := make([]RawWalletConfig, 0, len(names))
	for _, name := range names {
		sec := f.Section(name)
		out = append(out, RawWalletConfig{
			Name:    name,
			Title:   sec.Key("Title").String(),
			Address: sec.Key("Address").String(),
			PubKey:  sec.Key("PubKey").String(),
		})
	}
	return out
}

// splitWalletList splits on comma, semicolon, or colon, matching the
// classic xbridge ExchangeWallets list format.
func splitWalletList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ':'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Save writes the configuration to an INI file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f := ini.Empty()
	f.Comment = "; xhub exchange coordinator configuration\n; Generated automatically on first run"

	if err := f.Section("Network").ReflectFrom(&c.Network); err != nil {
		return fmt.Errorf("failed to marshal [Network]: %w", err)
	}
	if err := f.Section("Storage").ReflectFrom(&c.Storage); err != nil {
		return fmt.Errorf("failed to marshal [Storage]: %w", err)
	}
	if err := f.Section("Logging").ReflectFrom(&c.Logging); err != nil {
		return fmt.Errorf("failed to marshal [Logging]: %w", err)
	}

	names := make([]string, 0, len(c.Wallets))
	for _, w := range c.Wallets {
		names = append(names, w.Name)
	}
	main, err := f.NewSection("Main")
	if err != nil {
		return fmt.Errorf("failed to create [Main]: %w", err)
	}
	if _, err := main.NewKey("ExchangeWallets", strings.Join(names, ",")); err != nil {
		return fmt.Errorf("failed to write ExchangeWallets: %w", err)
	}

	for _, w := range c.Wallets {
		sec, err := f.NewSection(w.Name)
		if err != nil {
			return fmt.Errorf("failed to create [%s]: %w", w.Name, err)
		}
		if _, err := sec.NewKey("Title", w.Title); err != nil {
			return err
		}
		if _, err := sec.NewKey("Address", w.Address); err != nil {
			return err
		}
		if w.PubKey != "" {
			if _, err := sec.NewKey("PubKey", w.PubKey); err != nil {
				return err
			}
		}
	}

	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
