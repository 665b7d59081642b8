package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"congressflow/config"
	"congressflow/logger"
	"congressflow/pipeline"
	"congressflow/processor"
	"congressflow/reader/quiver"
	"congressflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath, "config/config.yml"))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Congressflow.Name,
		"version": cfg.Congressflow.Version,
	}).Info("starting congressflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	var indexer *processor.UniverseIndexer
	if cfg.Universe.Enabled {
		resolver, err := processor.NewFileResolver(cfg.Universe.ListingsFile)
		if err != nil {
			log.WithError(err).Error("Failed to load security listings")
			os.Exit(1)
		}
		indexer = processor.NewUniverseIndexer(resolver, cfg.MinListingDate())
	}

	client := quiver.NewClient(cfg)
	p := pipeline.New(cfg, client, indexer)

	if err := p.Run(ctx); err != nil {
		log.WithError(err).Error("Ingestion run failed")
		os.Exit(1)
	}

	if cfg.Storage.S3.Enabled {
		uploader, err := writer.NewUploader(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("Failed to initialize S3 uploader")
			os.Exit(1)
		}
		dirs := []string{cfg.Output.DataDir}
		// The universe dir usually nests inside the data dir; only walk
		// it separately when it does not.
		if rel, relErr := filepath.Rel(cfg.Output.DataDir, cfg.Output.UniverseDir); relErr != nil || strings.HasPrefix(rel, "..") {
			dirs = append(dirs, cfg.Output.UniverseDir)
		}
		for _, dir := range dirs {
			if _, statErr := os.Stat(dir); statErr != nil {
				continue
			}
			if err := uploader.UploadDir(ctx, dir); err != nil {
				log.WithError(err).Error("Failed to upload output to S3")
				os.Exit(1)
			}
		}
	}

	log.Info("congressflow finished")
}
