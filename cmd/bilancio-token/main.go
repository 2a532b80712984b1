// bilancio-token signs a bearer token for an identity. It exists for local
// development and operations; the API only verifies tokens, it never issues
// them.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/auth"
	"bilancio/internal/config"
)

func main() {
	_ = godotenv.Load()

	identity := flag.String("identity", "", "subject to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *identity == "" {
		fmt.Fprintln(os.Stderr, "usage: bilancio-token -identity <subject> [-ttl 24h]")
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	manager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, nil)
	token, err := manager.IssueToken(*identity, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
