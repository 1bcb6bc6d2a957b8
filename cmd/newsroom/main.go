package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/newsroom/internal/config"
	"github.com/ehrlich-b/newsroom/internal/logger"
	"github.com/ehrlich-b/newsroom/internal/store"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "newsroom",
		Short:        "Pressence Slovak news site and backend proxy",
		Long:         "Serves the Pressence newspaper pages, proxies the content backend and triggers its processing jobs.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: "+config.DefaultPath+" if present)")

	root.AddCommand(
		serveCmd(),
		doctorCmd(),
		scrapeCmd(),
		perfCmd(),
		auditCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Database.Path)
}
