package config

import (
	"path/filepath"
	"time"
)

// Config holds runtime settings for the gophvault CLI.
//
// Fields:
//   - DataDir: directory holding the vault database, the blobs and the device id.
//   - UserID: the local vault owner.
//   - ChunkSize: plaintext bytes per encrypted frame.
//   - SubscriptionPeriod: length of a period bought with "subscribe".
type Config struct {
	DataDir            string
	UserID             string
	ChunkSize          int
	SubscriptionPeriod time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = ".gophvault"
	c.UserID = "local"
	c.ChunkSize = 64 * 1024
	c.SubscriptionPeriod = 30 * 24 * time.Hour
}

func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, "vault.db") }
func (c *Config) BlobDir() string      { return filepath.Join(c.DataDir, "blobs") }
func (c *Config) DeviceIDFile() string { return filepath.Join(c.DataDir, "device.id") }

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
