package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tidewave/wasmhost/errors"
	"github.com/tidewave/wasmhost/runtime"
)

// shutdownGrace bounds how long Close waits for in-flight work.
const shutdownGrace = 10 * time.Second

var (
	cfgFile string
	dev     bool
)

var rootCmd = &cobra.Command{
	Use:           "wasmhost",
	Short:         "WASI preview-2 host for WASM guest agents and CLI command modules",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the host and its JSON-RPC endpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := buildLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		host := runtime.New(cfg, logger)
		port, err := host.Start(ctx)
		if err != nil {
			return err
		}
		logger.Info("serving", zap.Int("port", port))

		<-ctx.Done()
		logger.Info("shutting down")
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		host.Close(closeCtx)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile the configured guest and report imports the host does not provide",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := buildLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		missing, err := runtime.ValidateGuest(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			cmd.Printf("%s: all imports covered\n", cfg.Guest)
			return nil
		}
		cmd.Printf("%s: %d imports not covered\n", cfg.Guest, len(missing))
		for _, imp := range missing {
			cmd.Printf("  %s %s\n", imp.Module, imp.Name)
		}
		return errors.New(errors.PhaseInstantiate, errors.KindMissingImport).
			Entity(cfg.Guest).
			Detail("%d imports not covered", len(missing)).
			Build()
	},
}

func loadConfig() (runtime.Config, error) {
	if cfgFile == "" {
		cfg := runtime.DefaultConfig()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	return runtime.LoadConfig(cfgFile)
}

func buildLogger() (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&dev, "dev", false, "human-readable development logging")
	rootCmd.AddCommand(serveCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("wasmhost: " + err.Error() + "\n")
		os.Exit(1)
	}
}
