package main

import (
	"context"
	"fmt"
	"os"

	"fieldtrial/internal/config"
	"fieldtrial/internal/container"
	"fieldtrial/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	configPath string
	envFile    string
	container  *container.Container
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	rootCmd := &cobra.Command{
		Use:           "fieldtrial",
		Short:         "Field trial observations and study statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.container == nil {
				return nil
			}
			return opts.container.Close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		newStatsCmd(opts),
		newShowCmd(opts),
		newImportCmd(opts),
		newObservationCmd(opts),
		newMigrateCmd(opts),
	)
	return rootCmd
}

func (o *cliOptions) init(ctx context.Context) error {
	if o.envFile != "" {
		// a missing file is fine; variables already set win
		_ = godotenv.Load(o.envFile)
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Mode)
	if err != nil {
		return err
	}
	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Init(ctx); err != nil {
		return err
	}
	o.container = c
	return nil
}
