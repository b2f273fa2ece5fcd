package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/or0ji/Association-Website-Template/internal/handlers"
	"github.com/or0ji/Association-Website-Template/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(fmt.Errorf("error loading .env file: %w", err))
	}

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "assocsite")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfgFilePath := os.Getenv("ASSOCSITE_CONFIG")
	if cfgFilePath == "" {
		cfgFilePath = filepath.Join(cfgPath, "config.yaml")
	}

	cfg, err := readConfig(cfgFilePath, filepath.Join(cfgPath, "store.db"))
	if err != nil {
		log.Fatal(err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatal(fmt.Errorf("error parsing log level: %w", err))
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	boltDB, err := services.NewBoltDB(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer boltDB.Close()

	upstream, err := cfg.Upstream.upstream(boltDB, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating upstream: %w", err))
	}

	m := handlers.NewMain(upstream, services.NewSite(boltDB, logger), logger)

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating upload directory: %w", err))
	}
	fileServer := http.FileServer(http.Dir(cfg.UploadDir))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", fileServer))
	mux.HandleFunc("POST /api/chat/stream", m.HandleChatStream)
	mux.HandleFunc("GET /api/chat/health", m.HandleChatHealth)
	mux.HandleFunc("GET /api/menus/tree", m.HandleMenuTree)
	mux.HandleFunc("GET /api/pages/{slug}", m.HandlePage)
	mux.HandleFunc("GET /api/categories/{slug}", m.HandleCategoryArticles)
	mux.HandleFunc("GET /api/articles/latest", m.HandleLatestArticles)
	mux.HandleFunc("GET /api/articles/{id}", m.HandleArticle)
	mux.HandleFunc("GET /api/banners", m.HandleBanners)
	mux.HandleFunc("GET /api/settings", m.HandleSettings)
	mux.HandleFunc("GET /health", m.HandleHealth)
	mux.HandleFunc("GET /{$}", m.HandleHealth)

	// Create custom server. There is no write timeout since chat streams stay open for the whole turn.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.CORS(cfg.AllowedOrigins, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown chat streams", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr),
			slog.String("origins", strings.Join(cfg.AllowedOrigins, ",")))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}

// readConfig loads the configuration file at path. A missing file yields the defaults.
func readConfig(path, defaultDBPath string) (config, error) {
	var r io.Reader = strings.NewReader("")
	cfgFile, err := os.Open(path)
	switch {
	case err == nil:
		defer cfgFile.Close()
		r = cfgFile
	case !errors.Is(err, fs.ErrNotExist):
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	return loadConfig(r, defaultDBPath)
}
