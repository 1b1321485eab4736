// Package config handles configuration for the vault daemon, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the vault daemon.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the gRPC endpoint.
//   - DatabaseDriver: "sqlite" (local file) or "postgres" (pgx).
//   - DatabaseDSN: SQLite file path or PostgreSQL DSN.
//   - SecretKey: HMAC secret for verifying JWTs (HS256). Do not use test defaults in prod.
//   - AccessTokenValidityDuration: lifetime of tokens issued by the daemon.
//   - BlobBackend: "fs" stores ciphertext in BlobDir, "s3" in S3Bucket.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
//   - DeviceIDFile: where the device identifier is kept. Losing it makes every bundle unreadable.
//   - GracePeriod: default grace period after a subscription expires.
//   - RetentionMode / RetentionWindow / SweepInterval: purge policy for lapsed users.
//   - ChunkSize / EncryptConcurrency: encryption pipeline tuning.
//   - TierLimitsGB: storage limit per tier, in GiB.
type Config struct {
	EndpointAddrGRPC            string
	DatabaseDriver              string
	DatabaseDSN                 string
	SecretKey                   string
	AccessTokenValidityDuration time.Duration
	BlobBackend                 string
	BlobDir                     string
	S3RootUser                  string
	S3RootPassword              string
	S3Bucket                    string
	S3Region                    string
	S3BaseEndpoint              string
	DeviceIDFile                string
	GracePeriod                 time.Duration
	RetentionMode               string
	RetentionWindow             time.Duration
	SweepInterval               time.Duration
	ChunkSize                   int
	EncryptConcurrency          int
	TierLimitsGB                map[string]int64
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BlobBackendFS = "fs"
	BlobBackendS3 = "s3"
)

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = "127.0.0.1:50051"
	c.DatabaseDriver = DriverSQLite
	c.DatabaseDSN = "gophvault.db"
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.BlobBackend = BlobBackendFS
	c.BlobDir = "blobs"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "vault"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.DeviceIDFile = "device.id"
	c.GracePeriod = 7 * 24 * time.Hour
	c.RetentionMode = "indefinite"
	c.RetentionWindow = 90 * 24 * time.Hour
	c.SweepInterval = time.Hour
	c.ChunkSize = 64 * 1024
	c.EncryptConcurrency = 0
	c.TierLimitsGB = map[string]int64{"basic": 5, "pro": 12, "gold": 50}
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
