// Package config loads runtime configuration for the gophvault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   vault data directory
//	-u string   vault owner
//	-p int      subscription period (days)
//
// # JSON schema
//
//	{
//	  "data_dir": "/home/me/.gophvault",
//	  "user_id": "me",
//	  "chunk_size": 65536,
//	  "subscription_period": "720h"
//	}
//
// The database, the blob directory and the device id file all live under
// the data directory.
package config
