package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gonka-top/tracker/internal/config"
	"github.com/gonka-top/tracker/internal/gonka"
	"github.com/gonka-top/tracker/internal/store"
	"github.com/gonka-top/tracker/internal/tracker"
	"github.com/gonka-top/tracker/internal/trackerapi"
	"github.com/gonka-top/tracker/internal/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting tracker backend...")

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewStore(&cfg.RedisEnvConfig)
	if err := st.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize snapshot store")
	}

	client, err := gonka.NewClient(&cfg.GonkaEnvConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init gonka client")
	}
	log.Info().Strs("inference_urls", cfg.InferenceUrls).Msg("gonka client initialized")

	service := tracker.NewService(client, st)
	server := trackerapi.NewServer(&cfg.ServerEnvConfig, service)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received, stopping server")
		cancel()
	}()

	log.Info().Int("port", cfg.Port).Msg("tracker listening")
	if err := server.Start(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("tracker stopped")
}
