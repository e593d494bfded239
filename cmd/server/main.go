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

	"github.com/lysyi3m/rss-digest/app/api"
	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/logging"
	"github.com/lysyi3m/rss-digest/app/runner"
	"github.com/lysyi3m/rss-digest/app/tasks"
)

func main() {
	appConfig, _, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		return
	}

	logging.Setup(appConfig.Debug)

	slog.Info("Starting rss-digest server", "version", appConfig.Version)

	db, err := database.Connect(appConfig.DBURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(runner.ExitStoreInit)
	}
	defer db.Close()

	components, err := runner.Wire(appConfig, db)
	if err != nil {
		slog.Error("Failed to initialize components", "error", err)
		os.Exit(1)
	}

	scheduler := tasks.NewScheduler(components.Runner, components.ConfigCache, components.Feeds, appConfig.RunInterval)
	scheduler.Start()
	defer scheduler.Stop()

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		err := feed.WatchConfig(watchCtx, appConfig.FeedsFile, func() {
			if err := scheduler.SyncFeeds(); err != nil {
				slog.Warn("Failed to enqueue feed sync", "error", err)
			}
		})
		if err != nil {
			slog.Warn("Feeds file watcher stopped", "error", err)
		}
	}()

	handler := api.NewHandler(api.Deps{
		FeedRepo:      components.Feeds,
		ArticleRepo:   components.Articles,
		RecipientRepo: components.Recipients,
		SettingsRepo:  components.Settings,
		Archive:       components.Archive,
		ConfigCache:   components.ConfigCache,
		Scheduler:     scheduler,
		BaseURL:       appConfig.BaseUrl,
		Version:       appConfig.Version,
		FromName:      appConfig.FromName,
	})
	router := api.NewServer(handler, appConfig.AdminPassword)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}
