// Package cmd wires the CLI: configuration, logging and the login,
// collect and scrape subcommands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/internal/config"
	"github.com/kestrelmoor/harvester-cli/internal/observability"
)

var (
	cfgFile   string
	appConfig *config.Config
)

// rootCmd is the base command; all work happens in subcommands.
var rootCmd = &cobra.Command{
	Use:     "harvester",
	Short:   "Harvester scrapes authenticated listings into structured records.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			// Fall back to a basic logger so the failure is still visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "harvester"})
			return err
		}
		appConfig = cfg

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting harvester.", zap.String("version", Version))
		return nil
	},
}

// Execute runs the CLI under a signal-aware context so Ctrl-C unwinds the
// browser cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newCollectCmd())
	rootCmd.AddCommand(newScrapeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initializeConfig merges the config file, HARVESTER_* environment
// variables and defaults into the global viper instance.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars carry the run.
	}
	return nil
}
