// Command token issues access tokens for the vault daemon. It reads the same
// configuration as the daemon, so the signing secret and validity match.
//
//	token -user alice -scope vault -c server.json
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
)

func main() {

	cfg := config.LoadConfig()

	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "user id the token is issued for")
	scope := fs.String("scope", string(auth.ScopeVault), "token scope: vault or billing")
	if err := flagx.ParseFlagSet(fs); err != nil {
		log.Fatalf("%v", err)
	}

	if *user == "" {
		log.Fatal("-user is required")
	}
	if s := auth.Scope(*scope); s != auth.ScopeVault && s != auth.ScopeBilling {
		log.Fatalf("unknown scope %q", *scope)
	}

	token, err := auth.GenerateToken(*user, auth.Scope(*scope), []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Println(token)
}
