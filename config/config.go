package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const maxFeeBps = 10_000

// Config captures runtime configuration for marketd.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	FeeOwner      string `toml:"FeeOwner"`
	FeeRecipient  string `toml:"FeeRecipient"`
	FeeBps        uint32 `toml:"FeeBps"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./marketdata"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
}

// Validate rejects configurations the engines would refuse at wiring time.
func (c *Config) Validate() error {
	if c.FeeBps > maxFeeBps {
		return fmt.Errorf("config: FeeBps %d exceeds %d", c.FeeBps, maxFeeBps)
	}
	if _, err := c.FeeOwnerAddress(); err != nil {
		return err
	}
	if _, err := c.FeeRecipientAddress(); err != nil {
		return err
	}
	return nil
}

// FeeOwnerAddress decodes the configured fee owner.
func (c *Config) FeeOwnerAddress() ([20]byte, error) {
	return decodeAddress("FeeOwner", c.FeeOwner)
}

// FeeRecipientAddress decodes the configured fee recipient.
func (c *Config) FeeRecipientAddress() ([20]byte, error) {
	return decodeAddress("FeeRecipient", c.FeeRecipient)
}

func decodeAddress(field, value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if trimmed == "" {
		return addr, fmt.Errorf("config: %s required", field)
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("config: decode %s: %w", field, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("config: %s must be a 20-byte address", field)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./marketdata",
		Environment:   "local",
		FeeOwner:      "0x" + strings.Repeat("11", 20),
		FeeRecipient:  "0x" + strings.Repeat("22", 20),
		FeeBps:        250,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
