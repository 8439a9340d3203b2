package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/assistant"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/channels/whatsapp"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/webui"
)

// newServeCmd creates the `vendaclaw serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auto-reply daemon",
		Long: `Connect to WhatsApp and start answering customers. On first run a QR
code is published to the web dashboard for pairing.

Exemplos:
  vendaclaw serve
  vendaclaw serve --config ./config.yaml
  vendaclaw serve --no-webui`,
		RunE: runServe,
	}

	cmd.Flags().Bool("no-webui", false, "disable the web dashboard")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)

	// Resolve the API key from env or OS keyring before anything dials out.
	assistant.ResolveAPIKey(cfg, logger)
	if cfg.Generator.APIKey == "" {
		return fmt.Errorf("no API key configured; run 'vendaclaw config set-key' or set VENDACLAW_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	transport := whatsapp.New(cfg.WhatsApp, logger)

	a, err := assistant.New(cfg, transport, nil, logger)
	if err != nil {
		return fmt.Errorf("initializing assistant: %w", err)
	}

	noWebUI, _ := cmd.Flags().GetBool("no-webui")
	if cfg.WebUI.Enabled && !noWebUI {
		dashboard := webui.New(cfg.WebUI, a, logger)
		dashboard.SetQRProvider(transport)
		if err := dashboard.Start(ctx); err != nil {
			logger.Error("dashboard failed to start", "error", err)
		} else {
			defer dashboard.Stop()
			logger.Info("dashboard available", "address", cfg.WebUI.Address)
		}
	}

	logger.Info("VendaClaw running. Press Ctrl+C to stop.",
		"safe_mode", cfg.AutoReply.SafeMode,
		"draft_mode", cfg.AutoReply.DraftMode,
		"debounce_seconds", cfg.AutoReply.DebounceSeconds,
	)

	// Run blocks until the context is cancelled, then flushes the buffer
	// and closes the stores.
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running assistant: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from the verbose flag and config level.
func newLogger(cmd *cobra.Command, cfg *assistant.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	switch {
	case verbose, cfg.LogLevel == "debug":
		level = slog.LevelDebug
	case cfg.LogLevel == "warn":
		level = slog.LevelWarn
	case cfg.LogLevel == "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// resolveConfig loads the config file, offering interactive setup when none
// exists yet.
func resolveConfig(cmd *cobra.Command) (*assistant.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := assistant.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := assistant.FindConfigFile(); found != "" {
		cfg, err := assistant.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	fmt.Println()
	fmt.Println("No configuration file found.")
	fmt.Println("VendaClaw needs a config.yaml before connecting to WhatsApp.")
	fmt.Println()

	if err := runInteractiveSetup(); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	if found := assistant.FindConfigFile(); found != "" {
		cfg, err := assistant.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		return cfg, nil
	}

	return nil, fmt.Errorf("setup finished but no config.yaml was found")
}
