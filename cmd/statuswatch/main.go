// Command statuswatch follows a status hub and logs every change to the
// services and incidents it serves.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go-status-hub/internal/client"
	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/logger"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "hub base URL")
	channels := flag.String("channels", domain.ChannelServiceUpdates+","+domain.ChannelIncidentUpdates, "comma-separated channels to follow")
	maxAttempts := flag.Int("max-attempts", 0, "give up after this many consecutive connections that never went live (0 retries forever)")
	maxBackoff := flag.Duration("max-backoff", 30*time.Second, "upper bound of the reconnect delay")
	format := flag.String("log-format", "console", "log format: console or json")
	flag.Parse()

	lc := logger.NewDefaultConfig()
	lc.Format = *format
	log := logger.NewLogrusLogger(lc)

	base := strings.TrimRight(*server, "/")
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.NewController(
		&client.WebSocketDialer{URL: wsURL, HandshakeTimeout: 10 * time.Second},
		client.NewHTTPFetcher(base, 10*time.Second),
		client.Config{
			Channels:      strings.Split(*channels, ","),
			MaxBackoff:    *maxBackoff,
			MaxAttempts:   *maxAttempts,
			OnStateChange: func(s client.State) { log.Infof("connection %s", s) },
			OnUpdate: func(e client.Entry) {
				fields := logger.Fields{
					"entity":     e.Entity,
					"id":         e.ID,
					"updated_at": e.UpdatedAt.Format(time.RFC3339Nano),
				}
				if e.Deleted {
					log.WithFields(fields).Info("deleted")
					return
				}
				log.WithFields(fields).Infof("%s", e.Data)
			},
		},
		log,
	)

	if err := c.Run(ctx); err != nil {
		if errors.Is(err, client.ErrMaxAttempts) {
			log.Errorf("hub unreachable: %v", err)
		} else {
			log.Errorf("watch failed: %v", err)
		}
		os.Exit(1)
	}
}
