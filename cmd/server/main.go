package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/eventbook/internal/config"
	"github.com/Skotchmaster/eventbook/internal/db"
	"github.com/Skotchmaster/eventbook/internal/es"
	"github.com/Skotchmaster/eventbook/internal/httpserver"
	"github.com/Skotchmaster/eventbook/internal/logging"
	authmw "github.com/Skotchmaster/eventbook/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/eventbook/internal/middleware/logging"
	"github.com/Skotchmaster/eventbook/internal/mykafka"
	"github.com/Skotchmaster/eventbook/internal/repo"
	"github.com/Skotchmaster/eventbook/internal/service"
	"github.com/Skotchmaster/eventbook/internal/tokens"
)

type eventProducer interface {
	service.Publisher
	Close() error
}

func main() {
	config.LoadDotEnv(".env")
	cfg := config.MustLoad()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			logger.Warn("db_close_failed", "error", err)
		}
	}()

	if err := db.Migrate(initCtx, gdb); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	store := repo.New(gdb, repo.PolicyFromConfig(cfg.Password))
	signer := tokens.NewSigner(cfg.JWT.Secret, cfg.JWT.TokenLifetime)

	var producer eventProducer = mykafka.NopProducer{}
	if len(cfg.KafkaBrokers) > 0 {
		producer = mykafka.NewProducer(cfg.KafkaBrokers)
		logger.Info("kafka_enabled", "brokers", cfg.KafkaBrokers)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka_close_failed", "error", err)
		}
	}()

	elements := &service.PageElementService{
		Repo:     store,
		Searcher: store,
		Indexer:  es.NopIndex{},
		Events:   producer,
	}
	if cfg.ESURL != "" {
		client, err := es.NewClient(initCtx, es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword}, logger)
		if err != nil {
			return fmt.Errorf("es init: %w", err)
		}
		index := &es.PageElementIndex{Client: client, Index: cfg.ESIndex}
		elements.Searcher = index
		elements.Indexer = index
	}

	identity := service.NewIdentityService(store, store, signer, cfg.JWT.RefreshTokenLifetime, producer)

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), middleware.CORS())
	e.Use(loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		IdentityHandler:    &httpserver.IdentityHTTP{Svc: identity},
		PageElementHandler: &httpserver.PageElementHTTP{Svc: elements},
		Auth:               authmw.NewBearerAuth(signer),
		Ready: func(ctx context.Context) error {
			return db.Ping(ctx, gdb)
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-stop.Done():
	}

	logger.Info("shutting_down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", "error", err)
	}
	logger.Info("shutdown_complete")
	return nil
}
