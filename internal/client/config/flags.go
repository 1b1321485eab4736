package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   vault data directory
//	-u string   vault owner
//	-p int      subscription period (in days)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-u", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "vault data directory")
	fs.StringVar(&cfg.UserID, "u", cfg.UserID, "vault owner")
	periodDays := fs.Int("p", int(cfg.SubscriptionPeriod/(24*time.Hour)), "subscription period (in days)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SubscriptionPeriod = time.Duration(*periodDays) * 24 * time.Hour
}
