package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/completion"
	"github.com/joestump/awschat/internal/config"
	"github.com/joestump/awschat/internal/db"
	"github.com/joestump/awschat/internal/hub"
	"github.com/joestump/awschat/internal/logger"
	"github.com/joestump/awschat/internal/mcpserver"
	"github.com/joestump/awschat/internal/registry"
	"github.com/joestump/awschat/internal/web"
)

const ledgerFile = "awschat.db"

func main() {
	rootCmd := &cobra.Command{
		Use:          "awschat",
		Short:        "Streaming AWS chat backend with stage-isolated MCP tools",
		SilenceUsage: true,
		RunE:         serve,
	}

	f := rootCmd.PersistentFlags()
	f.Int("port", 8080, "HTTP port for the chat API")
	f.String("mcp-prod-url", "", "streamable HTTP URL of the prod tool registry")
	f.String("mcp-test-url", "", "streamable HTTP URL of the test tool registry")
	f.String("mcp-api-key", "", "API key sent to both tool registries")
	f.String("anthropic-api-key", "", "Anthropic API key (falls back to ANTHROPIC_API_KEY)")
	f.String("anthropic-base-url", "", "override the Anthropic API base URL")
	f.String("default-model", "claude-sonnet-4-5", "model used when a request names none")
	f.Int("max-tokens", 4096, "max output tokens per model call")
	f.Int("max-steps", 1, "model calls per request; >1 feeds tool results back")
	f.Int("thinking-budget", 0, "extended thinking budget in tokens (0 disables)")
	f.String("state-dir", "/state", "directory for persistent state")
	f.Bool("ledger-enabled", true, "record run outcomes in SQLite")
	f.Duration("tail-retention", 5*time.Minute, "how long finished runs stay tailable")
	f.Bool("verbose", false, "debug logging with a console encoder")

	// Viper keys use underscores so they match the env var suffix after
	// stripping the AWSCHAT_ prefix.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("port", "port")
	bindFlag("mcp_prod_url", "mcp-prod-url")
	bindFlag("mcp_test_url", "mcp-test-url")
	bindFlag("mcp_api_key", "mcp-api-key")
	bindFlag("anthropic_api_key", "anthropic-api-key")
	bindFlag("anthropic_base_url", "anthropic-base-url")
	bindFlag("default_model", "default-model")
	bindFlag("max_tokens", "max-tokens")
	bindFlag("max_steps", "max-steps")
	bindFlag("thinking_budget", "thinking-budget")
	bindFlag("state_dir", "state-dir")
	bindFlag("ledger_enabled", "ledger-enabled")
	bindFlag("tail_retention", "tail-retention")
	bindFlag("verbose", "verbose")

	viper.SetEnvPrefix("AWSCHAT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the chat API (default)",
			RunE:  serve,
		},
		registryCmd(),
		pruneCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("awschat starting",
		zap.String("version", config.Version),
		zap.Int("port", cfg.Port),
		zap.String("mcp_prod_url", cfg.MCPProdURL),
		zap.String("mcp_test_url", cfg.MCPTestURL),
		zap.String("default_model", cfg.DefaultModel),
		zap.Int("max_steps", cfg.MaxSteps),
		zap.Bool("ledger", cfg.LedgerEnabled),
	)

	opts := []web.ServerOption{
		web.WithLogger(log),
		web.WithHub(hub.New()),
	}
	if cfg.LedgerEnabled {
		database, err := db.Open(filepath.Join(cfg.StateDir, ledgerFile))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close() //nolint:errcheck
		opts = append(opts, web.WithLedger(database))
	}

	router := registry.NewRouter(
		registry.Endpoint{URL: cfg.MCPProdURL, APIKey: cfg.MCPAPIKey},
		registry.Endpoint{URL: cfg.MCPTestURL, APIKey: cfg.MCPAPIKey},
		nil,
	)
	provider := completion.NewAnthropic(completion.AnthropicOptions{
		APIKey:         cfg.AnthropicAPIKey,
		BaseURL:        cfg.AnthropicBaseURL,
		MaxTokens:      cfg.MaxTokens,
		MaxSteps:       cfg.MaxSteps,
		ThinkingBudget: cfg.ThinkingBudget,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	webServer := web.New(cfg, router, provider, opts...)
	errCh := make(chan error, 1)
	go func() {
		errCh <- webServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("web server shutdown", zap.Error(err))
	}
	return nil
}

// registryCmd serves the demo tool registry for one stage.
func registryCmd() *cobra.Command {
	var (
		stage  string
		listen string
		apiKey string
	)
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Serve a demo MCP tool registry for one stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := chat.ParseStage(stage)
			if err != nil {
				return err
			}
			log, err := logger.New(viper.GetBool("verbose"))
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			srv := &http.Server{
				Addr:              listen,
				Handler:           mcpserver.NewServer(st, apiKey, log).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info("registry listening", zap.String("stage", string(st)), zap.String("addr", listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "test", "stage the registry serves (prod or test)")
	cmd.Flags().StringVar(&listen, "listen", ":9001", "listen address")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "required x-api-key value (empty disables)")
	return cmd
}

// pruneCmd deletes finished ledger runs older than a cutoff.
func pruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			database, err := db.Open(filepath.Join(cfg.StateDir, ledgerFile))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close() //nolint:errcheck

			n, err := database.PruneRuns(cmd.Context(), db.Timestamp(time.Now().Add(-olderThan)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d runs\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the oldest run to keep")
	return cmd
}
