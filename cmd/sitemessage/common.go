package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/idlesign/sitemessage/internal/config"
	"github.com/idlesign/sitemessage/internal/db"
	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/messenger"
)

const defaultConfigPath = "sitemessage.yaml"

// addConfigFlag registers the shared --config flag.
func addConfigFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "config", "c", defaultConfigPath, "path to config file")
}

// openStore loads the configuration, connects to the dispatch store and
// populates the registries with the built-in message types and configured
// messenger backends.
func openStore(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	conn, err := db.Connect(db.Options{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, nil, err
	}

	delivery.RegisterBuiltinMessageTypes()
	if err := messenger.RegisterConfigured(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, conn, nil
}

// plural is a tiny helper for report lines.
func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
