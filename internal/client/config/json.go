package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
	"github.com/dmitrijs2005/gophvault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. The period
// accepts strings like "720h" or integer nanoseconds.
type JsonConfig struct {
	DataDir            string         `json:"data_dir"`
	UserID             string         `json:"user_id"`
	ChunkSize          int            `json:"chunk_size"`
	SubscriptionPeriod timex.Duration `json:"subscription_period"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c / -config. Keys missing from the file keep their current values. Read
// or unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.UserID != "" {
		cfg.UserID = jc.UserID
	}
	if jc.ChunkSize > 0 {
		cfg.ChunkSize = jc.ChunkSize
	}
	if jc.SubscriptionPeriod.Duration > 0 {
		cfg.SubscriptionPeriod = jc.SubscriptionPeriod.Duration
	}
}
