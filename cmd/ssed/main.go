package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/Kushchii/sse-service/internal/cmd/client"
	serverrun "github.com/Kushchii/sse-service/internal/cmd/server"
	cfgpkg "github.com/Kushchii/sse-service/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ssed",
		Short: "Transaction stream server CLI",
		Long:  "ssed runs the transaction broadcast server and provides client commands for submitting and tailing transactions.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgpkg.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg)

			if err := serverrun.Run(context.Background(), cfg); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (default OS application data directory)")
	serverStartCmd.Flags().String("strategy", "", "Delivery strategy: direct|replay-log|poll")
	serverStartCmd.Flags().Int("buffer-size", 0, "Per-subscriber buffer size")
	serverStartCmd.Flags().Duration("poll-interval", 0, "Store poll period for the poll strategy")
	serverStartCmd.Flags().String("store", "", "Record store backend: pebble|postgres")
	serverStartCmd.Flags().String("database-url", "", "Postgres connection string (store=postgres)")
	serverStartCmd.Flags().String("redis", "", "Redis address; enables the stream relay")
	serverStartCmd.Flags().String("fsync", "", "Pebble fsync mode: always|interval|never")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewTransactionCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags overlays explicitly set flags over the env-derived config.
func applyFlags(cmd *cobra.Command, cfg *cfgpkg.Config) {
	if v, _ := cmd.Flags().GetString("http"); v != "" {
		cfg.HTTPAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("strategy"); v != "" {
		cfg.Strategy = v
	}
	if v, _ := cmd.Flags().GetInt("buffer-size"); v > 0 {
		cfg.BufferSize = v
	}
	if v, _ := cmd.Flags().GetDuration("poll-interval"); v > 0 {
		cfg.PollInterval = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.StoreBackend = v
	}
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.RedisAddr = v
	}
	if v, _ := cmd.Flags().GetString("fsync"); v != "" {
		cfg.Fsync = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
}

func apiURL() string {
	if v := os.Getenv("SSE_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
