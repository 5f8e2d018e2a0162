// Package config loads daemon settings from the platform config directory,
// with environment and flag overrides layered on top. A missing config file
// is created with defaults so operators have something to edit.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tillbridge/tillbridge/internal/model"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 12321

	defaultScannerTimeoutMS   = 100
	defaultDiscoveryTimeoutMS = 3000
)

// Config is the full daemon configuration.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Bluetooth BluetoothConfig `mapstructure:"bluetooth"`

	// Printers are statically configured descriptors merged into every
	// discovery sweep. This is how paired Bluetooth printers get listed.
	Printers []model.PrinterDescriptor `mapstructure:"printers"`
}

// ScannerConfig controls barcode scan capture.
type ScannerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
	Device    string `mapstructure:"device"`
}

// DiscoveryConfig controls the printer discovery sweep.
type DiscoveryConfig struct {
	TimeoutMS  int  `mapstructure:"timeout_ms"`
	SubnetScan bool `mapstructure:"subnet_scan"`
}

// BluetoothConfig maps printer Bluetooth addresses to their bound RFCOMM
// device nodes, e.g. "AA:BB:CC:DD:EE:FF" -> "/dev/rfcomm0".
type BluetoothConfig struct {
	RFCOMM map[string]string `mapstructure:"rfcomm"`
}

// ScannerTimeout returns the inter-character gap as a duration.
func (c ScannerConfig) ScannerTimeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return defaultScannerTimeoutMS * time.Millisecond
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Timeout returns the per-provider discovery budget as a duration.
func (c DiscoveryConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return defaultDiscoveryTimeoutMS * time.Millisecond
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// DefaultPath returns the platform-specific config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	return filepath.Join(dir, "tillbridge", "config.json"), nil
}

// Load reads the config file at path, creating it with defaults when absent.
// An empty path means the platform default location. Environment variables
// prefixed TILLBRIDGE_ override file values (TILLBRIDGE_SCANNER_ENABLED,
// TILLBRIDGE_PORT, ...).
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v)

	v.SetEnvPrefix("TILLBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
		if err := writeDefaults(v, path); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("scanner.enabled", true)
	v.SetDefault("scanner.timeout_ms", defaultScannerTimeoutMS)
	v.SetDefault("scanner.device", "")
	v.SetDefault("discovery.timeout_ms", defaultDiscoveryTimeoutMS)
	v.SetDefault("discovery.subnet_scan", false)
	v.SetDefault("printers", []model.PrinterDescriptor{})
}

// writeDefaults materializes the default config so the file exists for
// operators to edit.
func writeDefaults(v *viper.Viper, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing default config %s: %w", path, err)
	}
	return nil
}
