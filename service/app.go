package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"inkwell/app/cache"
	"inkwell/app/config"
	"inkwell/app/events"
	"inkwell/app/identity"
	"inkwell/app/repositories"
	"inkwell/app/routes"
	"inkwell/app/services"
)

const shutdownTimeout = 10 * time.Second

// App is a fully wired blog service.
type App struct {
	Handler http.Handler
	Store   repositories.Store
	Relay   *events.Relay

	closers []io.Closer
}

// NewApp opens the configured store, cache and event sender and builds the
// HTTP handler on top of them.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("INKWELL_JWT_SECRET must be set")
	}

	app := &App{}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store
	app.closers = append(app.closers, store)

	var postCache cache.PostCache = cache.Nop{}
	if cfg.Redis.Enabled() {
		client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, client)
		postCache = cache.NewRedisCache(client, cfg.CacheTTL)
		log.Printf("post cache: redis at %s", cfg.Redis.Addr)
	}

	var sender events.Sender = events.LogSender{}
	if cfg.Kafka.Enabled() {
		kafkaSender := events.NewKafkaSender(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		app.closers = append(app.closers, kafkaSender)
		sender = kafkaSender
		log.Printf("outbox relay: publishing to kafka topic %s", cfg.Kafka.Topic)
	}
	app.Relay = events.NewRelay(store, sender, cfg.OutboxInterval)

	opts := services.Options{
		StorageTimeout:              cfg.StorageTimeout,
		AutoApproveComments:         cfg.CommentsAutoApprove,
		RequirePublishedForComments: cfg.CommentsRequirePublished,
		HardDelete:                  cfg.HardDelete,
		Cache:                       postCache,
	}
	app.Handler = routes.SetupRoutes(routes.Deps{
		Posts:    services.NewPostService(store, opts),
		Comments: services.NewCommentService(store, opts),
		Queries:  services.NewQueryService(store, opts),
		Tokens:   identity.NewVerifier([]byte(cfg.JWTSecret)),
	})
	return app, nil
}

func openStore(cfg *config.Config) (repositories.Store, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		store, err := repositories.OpenSQLStore(cfg.MySQL.DSN())
		if err != nil {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		log.Printf("store: mysql at %s:%d/%s", cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.Database)
		return store, nil
	default:
		store, err := repositories.OpenBadgerStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		log.Printf("store: badger at %s", cfg.DBPath)
		return store, nil
	}
}

// Close releases everything NewApp opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run serves HTTP on addr and relays outbox events until ctx is cancelled,
// then drains in-flight requests.
func (a *App) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go a.Relay.Run(relayCtx)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting blog service on %s", addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down blog service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	stopRelay()
	if _, err := a.Relay.DrainOnce(shutdownCtx); err != nil {
		log.Printf("outbox relay: final drain: %v", err)
	}
	return nil
}

// RunAppServer loads the configuration and runs the service until ctx ends.
func RunAppServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Run(ctx, cfg.Addr)
}
