// Command devtoken prints a bearer token accepted by the hub's write API,
// signed with the AUTH_SECRET and AUTH_ISSUER the server would load.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go-status-hub/internal/infrastructure/auth"
	"go-status-hub/internal/infrastructure/config"
)

func main() {
	user := flag.String("user", "dev", "subject of the token")
	org := flag.String("org", "", "organization claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	token, err := issue(cfg, *user, *org, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func issue(cfg *config.Config, user, org string, ttl time.Duration) (string, error) {
	if cfg.Env == "production" {
		return "", errors.New("devtoken: refusing to issue tokens with APP_ENV=production")
	}
	if user == "" {
		return "", errors.New("devtoken: -user is required")
	}
	if ttl <= 0 {
		return "", errors.New("devtoken: -ttl must be positive")
	}
	return auth.NewIdentity(cfg.AuthSecret, cfg.AuthIssuer).IssueToken(user, org, ttl)
}
