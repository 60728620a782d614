package main

import (
	"context"
	"fmt"
	"os"

	_ "time/tzdata"

	"github.com/iago/report-relay/internal/config"
	"github.com/iago/report-relay/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:   "report-relay",
		Short: "LINE safety report relay",
		Long: `LINE safety report relay

Accepts incident reports from the LIFF form, alerts the admin over LINE and
closes reports from admin chat commands.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), loadConfig(envFiles))
		},
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env", ".env.local"}, "dotenv files to load before reading the environment")

	rootCmd.AddCommand(serveCmd(&envFiles))
	rootCmd.AddCommand(migrateCmd(&envFiles))
	return rootCmd
}

func serveCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the webhook worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), loadConfig(*envFiles))
		},
	}
}

func migrateCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to DATABASE_URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), loadConfig(*envFiles))
		},
	}
}

func loadConfig(envFiles []string) config.Config {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "failed loading .env files: %v\n", err)
	}
	return config.Load()
}

func newLogger(cfg config.Config) *logrus.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
}
