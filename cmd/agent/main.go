package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelchain/reelchain-agent/internal/api"
	"github.com/reelchain/reelchain-agent/internal/chain"
	"github.com/reelchain/reelchain-agent/internal/config"
	"github.com/reelchain/reelchain-agent/internal/db"
	"github.com/reelchain/reelchain-agent/internal/logging"
	"github.com/reelchain/reelchain-agent/internal/media"
	"github.com/reelchain/reelchain-agent/internal/poller"
	"github.com/reelchain/reelchain-agent/internal/provider"
	"github.com/reelchain/reelchain-agent/internal/simulation"
	"github.com/reelchain/reelchain-agent/internal/studio"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ClipsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create clips dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reelchain agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	archive := chain.NewSQLiteArchive(database.Conn())

	deviceID, err := ensureDeviceID(archive)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(archive)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                   REELCHAIN AGENT v0.1.0                  ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	store := chain.NewStore(archive, studio.ReleaseClipFiles(logger), logger)

	var sim *simulation.Backend
	var client provider.Client
	if cfg.ProviderEnabled() {
		tokens := provider.NewStaticTokenSource(cfg.ProviderToken())
		client = provider.NewHTTPClient(cfg.ProviderBaseURL(), tokens, logger)
		logger.Info("using live provider", "base_url", cfg.ProviderBaseURL())
	} else {
		// No credentials configured: mount the built-in simulated provider
		// under /sim and point the client at our own server.
		simBase := fmt.Sprintf("http://127.0.0.1:%d/sim", cfg.Port())
		sim = simulation.NewBackend(cfg.SimDelay(), simBase, logger)
		client = provider.NewHTTPClient(simBase, provider.NewStaticTokenSource("sim"), logger)
		logger.Info("no provider credentials, using simulated provider", "base_url", simBase)
	}

	downloader := media.NewHTTPDownloader(logger)

	var extractor media.FrameExtractor
	ffmpeg := media.NewFFmpegExtractor(logger)
	if ffmpeg.Available() {
		extractor = ffmpeg
	} else {
		logger.Warn("ffmpeg not found, continuation frames will reuse clip bytes")
		extractor = media.NewStubExtractor(logger)
	}

	director := studio.New(studio.Config{
		Store:      store,
		Client:     client,
		Downloader: downloader,
		Extractor:  extractor,
		ClipsDir:   cfg.ClipsDir(),
		Poll: poller.Config{
			InitialDelay: cfg.PollInitialDelay(),
			MaxDelay:     cfg.PollMaxDelay(),
			Deadline:     cfg.PollDeadline(),
			Multiplier:   config.PollBackoffMultiplier,
			Logger:       logger,
		},
		Logger: logger,
	})

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Director:   director,
		Archive:    archive,
		Simulation: sim,
		Logger:     logger,
		StartTime:  startTime,
		DeviceID:   deviceID,
		Version:    Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	director.Cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureDeviceID(archive chain.Archive) (string, error) {
	ctx := context.Background()

	existing, err := archive.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := archive.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(archive chain.Archive) (string, error) {
	ctx := context.Background()

	existing, err := archive.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := archive.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
