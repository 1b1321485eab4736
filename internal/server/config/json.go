package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
	"github.com/dmitrijs2005/gophvault/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Durations accept both "168h"
// strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC            string           `json:"endpoint_addr_grpc"`
	DatabaseDriver              string           `json:"database_driver"`
	DatabaseDSN                 string           `json:"database_dsn"`
	SecretKey                   string           `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration   `json:"access_token_validity_duration"`
	BlobBackend                 string           `json:"blob_backend"`
	BlobDir                     string           `json:"blob_dir"`
	S3RootUser                  string           `json:"s3_root_user"`
	S3RootPassword              string           `json:"s3_root_password"`
	S3Bucket                    string           `json:"s3_bucket"`
	S3Region                    string           `json:"s3_region"`
	S3BaseEndpoint              string           `json:"s3_base_endpoint"`
	DeviceIDFile                string           `json:"device_id_file"`
	GracePeriod                 timex.Duration   `json:"grace_period"`
	RetentionMode               string           `json:"retention_mode"`
	RetentionWindow             timex.Duration   `json:"retention_window"`
	SweepInterval               timex.Duration   `json:"sweep_interval"`
	ChunkSize                   int              `json:"chunk_size"`
	EncryptConcurrency          int              `json:"encrypt_concurrency"`
	TierLimitsGB                map[string]int64 `json:"tier_limits_gb"`
}

// parseJson overlays the JSON file named by -c / -config onto config. Keys
// missing from the file keep their current values. An unreadable or invalid
// file panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.BlobDir, c.BlobDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.DeviceIDFile, c.DeviceIDFile)
	setDuration(&config.GracePeriod, c.GracePeriod)
	setString(&config.RetentionMode, c.RetentionMode)
	setDuration(&config.RetentionWindow, c.RetentionWindow)
	setDuration(&config.SweepInterval, c.SweepInterval)
	if c.ChunkSize > 0 {
		config.ChunkSize = c.ChunkSize
	}
	if c.EncryptConcurrency > 0 {
		config.EncryptConcurrency = c.EncryptConcurrency
	}
	if len(c.TierLimitsGB) > 0 {
		if config.TierLimitsGB == nil {
			config.TierLimitsGB = make(map[string]int64, len(c.TierLimitsGB))
		}
		for tier, gb := range c.TierLimitsGB {
			config.TierLimitsGB[tier] = gb
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
