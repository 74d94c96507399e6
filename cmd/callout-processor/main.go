package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/config"
	"github.com/Woody88/sitelink-sub002/internal/detect"
	"github.com/Woody88/sitelink-sub002/internal/ocr"
	"github.com/Woody88/sitelink-sub002/internal/pipeline"
	"github.com/Woody88/sitelink-sub002/internal/server"
	"github.com/Woody88/sitelink-sub002/internal/vision"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("callout-processor %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("callout-processor - callout/marker detection service for plan sheets")
			fmt.Println()
			fmt.Println("Usage: callout-processor [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  PORT                   HTTP listen port (default 8080)")
			fmt.Println("  LOG_LEVEL              debug, info, warn, error (default info)")
			fmt.Println("  VISION_PROVIDER        openai, anthropic or ollama (default openai)")
			fmt.Println("  VISION_MODEL           model name for the selected provider")
			fmt.Println("  DETECTION_STRATEGY     cv-llm, region, ocr-llm or ensemble")
			fmt.Println()
			fmt.Println("Detection tunables (thresholds, distances, batching) are also")
			fmt.Println("read from the environment; see internal/config.")
			return
		}
	}

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		logrus.Debug("loaded configuration from .env")
	}

	cfg := config.Load()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	log := logrus.WithField("service", "callout-processor")
	log.WithFields(logrus.Fields{
		"version":  Version,
		"commit":   GitCommit,
		"strategy": cfg.Strategy,
		"provider": cfg.VisionProvider,
	}).Info("starting")

	model, err := vision.NewModel(cfg.ProviderConfig())
	if err != nil {
		log.WithError(err).Fatal("failed to construct the vision model client")
	}

	batcher := vision.NewBatcher(cfg.BatcherConfig())
	deps := pipeline.Deps{
		Detector:  detect.New(detect.Config{}),
		OCR:       ocr.NewTesseract(cfg.OCRLanguage),
		Validator: vision.NewValidator(model, batcher, cfg.ValidatorConfig(), log),
		Proposer:  vision.NewProposer(model, cfg.ProposerConfig(), log),
		Log:       log,
	}

	// Fail fast on a misconfigured strategy name instead of per request.
	if _, err := pipeline.NewStrategy(cfg.Strategy, deps, cfg.StrategyOptions()); err != nil {
		log.WithError(err).Fatal("invalid detection strategy")
	}

	srv := server.New(cfg, deps, log)
	srv.SetReady(true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Fatal("server error")
		}
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("shutdown did not complete cleanly")
		}
	}
}
