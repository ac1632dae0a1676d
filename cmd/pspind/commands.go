package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/spin-relay/spinClient/config"
	"github.com/pushchain/spin-relay/spinClient/constant"
	"github.com/pushchain/spin-relay/spinClient/core"
	"github.com/pushchain/spin-relay/spinClient/db"
	"github.com/pushchain/spin-relay/spinClient/logger"
)

// Set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

const (
	flagLogLevel       = "log-level"
	flagLogFormat      = "log-format"
	flagLogSampler     = "log-sampler"
	flagPort           = "port"
	flagDefaultNetwork = "default-network"
	flagForce          = "force"
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(networkCmd())
	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(disconnectCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := homeDir(cmd)
			configFile := filepath.Join(home, constant.ConfigSubdir, constant.ConfigFileName)

			force, _ := cmd.Flags().GetBool(flagForce)
			if _, err := os.Stat(configFile); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --%s to overwrite)", configFile, flagForce)
			}

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = home
			if err := applyOverrides(cmd, cfg); err != nil {
				return err
			}
			if err := config.Save(cfg, home); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Config saved at %s\n", configFile)
			return nil
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool(flagForce, false, "Overwrite an existing config")
	return cmd
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the spin relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := homeDir(cmd)
			cfg, err := config.Load(home)
			if err != nil {
				return fmt.Errorf("%w (run `pspind init` first)", err)
			}
			if err := applyOverrides(cmd, &cfg); err != nil {
				return err
			}
			if err := config.Validate(&cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			database, err := db.OpenFileDB(filepath.Join(home, constant.DatabasesSubdir), constant.DatabaseFileName, true)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := core.NewClient(ctx, &cfg, database, log)
			if err != nil {
				_ = database.Close()
				return err
			}
			if err := client.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	addConfigFlags(cmd)
	return cmd
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().Int(flagLogLevel, 1, "Log level (0=debug ... 5=panic)")
	cmd.Flags().String(flagLogFormat, "console", "Log format (json|console)")
	cmd.Flags().Bool(flagLogSampler, false, "Sample logs")
	cmd.Flags().Int(flagPort, 8080, "HTTP and bridge port")
	cmd.Flags().String(flagDefaultNetwork, "", "Network used when no selection is stored")
}

// applyOverrides layers explicitly set flags and PSPIN_* environment variables over cfg.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(constant.EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	isSet := func(key string) bool {
		if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
			return true
		}
		_, ok := os.LookupEnv(envName(key))
		return ok
	}

	if isSet(flagLogLevel) {
		cfg.LogLevel = v.GetInt(flagLogLevel)
	}
	if isSet(flagLogFormat) {
		cfg.LogFormat = v.GetString(flagLogFormat)
	}
	if isSet(flagLogSampler) {
		cfg.LogSampler = v.GetBool(flagLogSampler)
	}
	if isSet(flagPort) {
		cfg.QueryServerPort = v.GetInt(flagPort)
	}
	if isSet(flagDefaultNetwork) {
		cfg.DefaultNetwork = v.GetString(flagDefaultNetwork)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print pspind version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Name:       %s\n", "pspind")
			fmt.Printf("Version:    %s\n", Version)
			fmt.Printf("Commit:     %s\n", Commit)
		},
	}
}
