package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/app"
	"github.com/noah-isme/assign-override-api/pkg/config"
	"github.com/noah-isme/assign-override-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "assign-admin",
	Short:         "Operator tooling for the assignment override service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newPrivacyCmd())
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logr, nil
}

func buildContainer() (*app.Container, error) {
	cfg, logr, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(cfg, logr)
}
