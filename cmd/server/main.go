package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/vcscompare/internal/server"
	"github.com/openmined/vcscompare/internal/utils"
	"github.com/openmined/vcscompare/internal/version"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vcscompare-server",
		Short:         "Repository server for vcscompare working copies",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if cfg.Auth.Enabled {
				slog.Info("auth enabled", "issuer", cfg.Auth.TokenIssuer, "secret", utils.MaskSecret(cfg.Auth.TokenSecret))
			}

			s, err := server.New(cfg)
			if err != nil {
				return err
			}
			defer slog.Info("Bye!")
			return s.Start(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "server config file (json or yaml)")
	rootCmd.PersistentFlags().StringP("db", "d", "", "repository database path")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringP("bind", "b", server.DefaultAddr, "address to bind the server")
	rootCmd.Flags().String("cert", "", "path to the certificate file")
	rootCmd.Flags().String("key", "", "path to the key file")
	rootCmd.Flags().Int("api-level", server.DefaultAPILevel, "api level advertised to clients")

	rootCmd.AddCommand(
		newImportCmd(),
		newMkdirCmd(),
		newCopyCmd(),
		newRemoveCmd(),
		newPropSetCmd(),
		newTokenCmd(),
	)
	return rootCmd
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func setupLogger(cmd *cobra.Command) error {
	var level slog.Level
	name, _ := cmd.Flags().GetString("log-level")
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q", name)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))
	return nil
}
