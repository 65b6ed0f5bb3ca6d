package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"audiosource/internal/acquisition"
	"audiosource/internal/config"
	"audiosource/internal/database"
	"audiosource/internal/metadata"
	"audiosource/internal/musicbrainz"
	"audiosource/internal/scanner"
	"audiosource/internal/server"
	"audiosource/internal/slskd"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Secrets (slskd API key, ngrok token) may live in a .env file.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logger.WithError(err).Warn("Could not load .env file")
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	if _, err := os.Stat(cfg.Library.Path); os.IsNotExist(err) {
		logger.WithField("library_path", cfg.Library.Path).Warn("Library directory does not exist yet; scans will find nothing until it is created")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	extractor := metadata.NewExtractor(cfg.Library.SupportedFormats)
	resolver := musicbrainz.NewClient(&cfg.MusicBrainz)
	scanService := scanner.NewService(db, extractor, resolver, cfg.Library.Path)
	organizer := scanner.NewOrganizer(cfg.Library.Path, extractor)

	var p2pClient acquisition.SoulseekClient
	if cfg.Slskd.Enabled {
		client := slskd.NewClient(&cfg.Slskd)
		if err := client.Probe(); err != nil {
			logger.WithError(err).Warn("slskd is not reachable; downloads will fail until it comes up")
		}
		p2pClient = client
	}
	acqService := acquisition.NewService(db, p2pClient, scanService, organizer, cfg.Slskd, cfg.Acquisition)

	srv, err := server.NewServer(cfg, db, extractor, scanService, acqService, resolver)
	if err != nil {
		logger.WithError(err).Fatal("Error creating server")
	}

	if cfg.Library.ScanOnStartup {
		if err := scanService.StartScan(false); err != nil {
			logger.WithError(err).Warn("Startup scan not started")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server exited with error")
	}
}
