package main

import (
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alecgard/cloudtally/internal/cloud"
)

var snapshotPretty bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Aggregate the inventory once with the service account and print it as JSON",
	RunE:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotPretty, "pretty", false, "indent the JSON output")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}
	if cfg.Backend.AuthURL == "" {
		return errors.New("backend.auth_url is required")
	}

	aggregator, err := newAggregator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := newProvider(cfg).Authenticate(ctx, cloud.Credential{
		Principal: cfg.Backend.Username,
		Secret:    cfg.Backend.Password,
	})
	if err != nil {
		return err
	}

	snap, err := aggregator.Aggregate(ctx, sess)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if snapshotPretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(snap)
}
