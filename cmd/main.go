package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"go-status-hub/internal/application/gateway"
	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/auth"
	"go-status-hub/internal/infrastructure/config"
	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
	"go-status-hub/internal/infrastructure/notify"
	"go-status-hub/internal/infrastructure/server"
	"go-status-hub/internal/infrastructure/store"
	"go-status-hub/internal/interfaces/sse"
	"go-status-hub/internal/interfaces/websocket"
)

func main() {
	ctx := context.Background()
	sctx := WithSignal(ctx)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.NewLogrusLogger(cfg.LoggerConfig())

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Errorf("failed to open store: %v", err)
		os.Exit(1)
	}
	log.Infof("record store %q ready", cfg.StoreDriver)

	notifier := buildNotifier(cfg, log)

	hubInstance := hub.New(log, hub.WithChannels(domain.ChannelServiceUpdates, domain.ChannelIncidentUpdates))
	if err := hubInstance.Start(ctx); err != nil {
		log.Errorf("failed to start hub: %v", err)
		os.Exit(1)
	}

	gw := gateway.New(st, hubInstance, notifier, log, gateway.Config{
		CommitTimeout: cfg.CommitTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	})

	if cfg.AuthSecret == "" {
		log.Warn("AUTH_SECRET is empty; every write will be rejected")
	}

	router := InitRouter(routerDeps{
		hub:      hubInstance,
		gateway:  gw,
		store:    st,
		identity: auth.NewIdentity(cfg.AuthSecret, cfg.AuthIssuer),
		websocket: websocket.Config{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Connection: hub.WebSocketConfig{
				SendQueue:      cfg.SendQueue,
				WriteTimeout:   cfg.WriteTimeout,
				PongWait:       cfg.PongWait,
				PingPeriod:     cfg.PingPeriod,
				MaxMessageSize: hub.DefaultWebSocketConfig().MaxMessageSize,
			},
		},
		sse:       sse.Config{SendQueue: cfg.SendQueue, KeepAlive: cfg.SSEKeepAlive},
		ginLogger: cfg.Env != "production",
	}, log)

	httpSrv := server.NewHTTPServer(cfg.HTTPAddr, router)
	app := newApplication(log, cfg.ShutdownTimeout, httpSrv, hubInstance, gw, st, notifier)
	log.Infof("listening on %s", cfg.HTTPAddr)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "mongo":
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return store.NewMongoStore(cctx, store.MongoConfig{
			URI:         cfg.MongoURI,
			Database:    cfg.MongoDatabase,
			MaxPoolSize: 50,
			MaxRetry:    5,
			Logger:      log,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}

func buildNotifier(cfg *config.Config, log logger.Logger) notify.Multi {
	senders := notify.Multi{notify.NewLogSender(log)}
	if cfg.SMTPHost != "" {
		senders = append(senders, notify.NewSMTPSender(notify.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			Recipients: cfg.AlertRecipientList(),
		}))
		log.Infof("e-mail alerts enabled for %d recipients", len(cfg.AlertRecipientList()))
	}
	if k := notify.NewKafkaSender(cfg.KafkaBrokerList(), cfg.KafkaTopic); k != nil {
		senders = append(senders, k)
		log.Infof("kafka alerts enabled on topic %s", cfg.KafkaTopic)
	}
	return senders
}

type Application struct {
	logger          logger.Logger
	shutdownTimeout time.Duration
	httpSrv         server.Server
	hub             *hub.Hub
	gateway         *gateway.Gateway
	store           store.Store
	notifier        notify.Multi
}

func newApplication(
	logger logger.Logger,
	shutdownTimeout time.Duration,
	httpSrv server.Server,
	hubInstance *hub.Hub,
	gw *gateway.Gateway,
	st store.Store,
	notifier notify.Multi,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "status-hub"),
		shutdownTimeout: shutdownTimeout,
		httpSrv:         httpSrv,
		hub:             hubInstance,
		gateway:         gw,
		store:           st,
		notifier:        notifier,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(gctx)
	})

	// gctx also ends when the server fails to start.
	eg.Go(func() error {
		<-gctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
		defer cancel()

		// Stop hub first so streaming handlers return
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		if err := app.httpSrv.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop http server: %v", err)
		}

		if err := app.gateway.Drain(gracefulshutdownCtx); err != nil {
			app.logger.Warnf("pending notifications abandoned: %v", err)
		}
		if err := app.notifier.Close(); err != nil {
			app.logger.Errorf("failed to close notifiers: %v", err)
		}
		return app.store.Close(gracefulshutdownCtx)
	})

	err := eg.Wait()
	if err != nil {
		return err
	}

	return nil
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
