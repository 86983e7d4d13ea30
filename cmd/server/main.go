package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"dojotap/auth"
	"dojotap/cognito"
	"dojotap/internal/config"
	"dojotap/server"
	"dojotap/storage"
	"dojotap/storage/bbolt"
	"dojotap/storage/postgres"
	"dojotap/tokencipher"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	for {
		if err := run(log); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	config.LoadDotEnv()
	cfg := config.New()
	displayAppname(cfg.GetAppName())

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("openStore: %w", err)
	}
	defer store.Close()

	manager, err := auth.New(auth.Dependencies{
		Store:  store,
		Cipher: tokencipher.New(cfg.GetTokenPassphrase()),
		Bridge: cognito.New(cfg),
	}, cfg)
	if err != nil {
		return fmt.Errorf("auth.New: %w", err)
	}

	srv, err := server.New(cfg, manager, log)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	srv.LogRoutes()

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: srv}
	go listenAndServe(log, httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// openStore picks the session store from the environment: postgres when
// DATABASE_URL is set (with an optional redis session cache), a local bbolt
// file otherwise.
func openStore(cfg config.Config) (storage.Repository, error) {
	if connString := cfg.GetDatabaseURL(); connString != "" {
		var options []postgres.Option
		if redisURL := cfg.GetRedisURL(); redisURL != "" {
			options = append(options, postgres.WithRedis(redisURL, 30*time.Minute))
		}
		return postgres.Open(connString, options...)
	}
	folder := cfg.GetDataFolder()
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("creating data folder: %w", err)
	}
	return bbolt.Open(filepath.Join(folder, "dojotap.db"))
}

func listenAndServe(log zerolog.Logger, server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
