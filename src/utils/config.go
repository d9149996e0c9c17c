package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig carries the postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
}

// ReserveConfig names the two cash legs backing a currency.
type ReserveConfig struct {
	Currency    string `yaml:"currency"`
	LongSymbol  string `yaml:"long_symbol"`
	ShortSymbol string `yaml:"short_symbol"`
}

// StrategyConfig registers a strategy kind to instantiate at startup.
type StrategyConfig struct {
	Kind     string `yaml:"kind"`
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

// KernelConfig is the file-based configuration for the bookkeeping core.
type KernelConfig struct {
	Database DatabaseConfig `yaml:"database"`

	Reserves   []ReserveConfig  `yaml:"reserves"`
	Strategies []StrategyConfig `yaml:"strategies"`

	UnitRounding          string `yaml:"unit_rounding"`
	EnableAggregatedCarry bool   `yaml:"enable_aggregated_carry"`
}

// LoadKernelConfig reads a yaml config file. A missing path yields defaults.
func LoadKernelConfig(path string) (*KernelConfig, error) {
	cfg := &KernelConfig{}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadKernelConfig: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("LoadKernelConfig: parse %s: %w", path, err)
	}

	return cfg, nil
}
