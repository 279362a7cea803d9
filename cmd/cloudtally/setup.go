package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/alecgard/cloudtally/internal/cloud/openstack"
	"github.com/alecgard/cloudtally/internal/config"
	"github.com/alecgard/cloudtally/internal/inventory"
)

const defaultConfigPath = "configs/cloudtally.yaml"

// loadConfig reads --config, or the default path when it exists.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return config.Load(path)
}

func setupLogger(cfg *config.Config) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func newProvider(cfg *config.Config) *openstack.Provider {
	return openstack.NewProvider(openstack.Options{
		AuthURL:         cfg.Backend.AuthURL,
		ProjectName:     cfg.Backend.ProjectName,
		Region:          cfg.Backend.Region,
		UserDomainID:    cfg.Backend.UserDomainID,
		ProjectDomainID: cfg.Backend.ProjectDomainID,
		Insecure:        cfg.Backend.Insecure,
		Timeout:         cfg.Backend.RequestTimeout,
	})
}

func newAggregator(cfg *config.Config) (*inventory.Aggregator, error) {
	table, err := cfg.PricingTable()
	if err != nil {
		return nil, err
	}
	return inventory.New(table, cfg.Backend.RequestTimeout), nil
}
