// Command devtoken prints a signed access token for local testing against a
// ledger started with the same AUTH_SECRET.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"kasirledger/internal/config"
	"kasirledger/internal/httpapi"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()

	username := flag.String("user", "admin", "token subject")
	role := flag.String("role", "admin", "cashier or admin")
	ttl := flag.Duration("ttl", time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, "token lifetime")
	flag.Parse()

	if cfg.AuthSecret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_SECRET is not set")
		os.Exit(1)
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, *ttl, "")
	token, expiresAt, err := auth.IssueToken(*username, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
}
