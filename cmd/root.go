package cmd

import (
	"fmt"

	"github.com/niraliveastro/astro-call-service/internal/config"
	"github.com/niraliveastro/astro-call-service/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:          "astro-call-service",
	Short:        "Astrologer call signaling: availability, call queue, live events",
	Long:         `HTTP + SSE/WebSocket API with a gRPC health endpoint. Commands: api, migrate, seed, command, fix-pending-calls, token.`,
	RunE:         runAPI, // default: run API (same as "astro-call-service api")
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads .env and the environment and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}
