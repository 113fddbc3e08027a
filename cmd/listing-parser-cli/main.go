// Package main provides the listing-parser CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/config"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/listing"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool
	serverURL  string
	apiKey     string
	kbPath     string

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "listing-parser-cli",
	Short: "Turn free-text classified ads into structured listing drafts",
	Long: `listing-parser-cli extracts a structured draft (price, category, condition,
vehicle details, contact phone, highlights and missing fields) from free-text
classified-ad copy, mostly Hebrew.

Use this tool to:
- Analyze a single ad, or a whole file of ads
- Manage the knowledge base of vehicle makes, models and category synonyms
- Run database migrations
- Serve the analyzer to agents over MCP

Commands run locally by default. Pass --server to use a running API instead.
All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if kbPath != "" {
			cfg.Knowledge.Source = "file"
			cfg.Knowledge.Path = kbPath
		}

		logCfg := cfg.LogConfig()
		logCfg.Output = os.Stderr
		logCfg.ServiceName = "listing-parser-cli"
		if !outputJSON {
			logCfg.Format = "console"
		}
		if !verbose && logCfg.Level == "info" {
			logCfg.Level = "warn"
		}
		logger = observability.NewLogger(logCfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", os.Getenv("LISTING_PARSER_URL"), "listing-parser API base URL (runs locally when empty)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("LISTING_PARSER_API_KEY"), "API key for --server")
	rootCmd.PersistentFlags().StringVar(&kbPath, "kb", "", "knowledge base file (YAML or JSON); overrides the configured source")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newKBCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// localRuntime builds the service from the loaded configuration.
func localRuntime(ctx context.Context) (*listing.Runtime, error) {
	rt, err := listing.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return rt, nil
}

func remoteClient() *magicparse.Client {
	return magicparse.NewClient(magicparse.ClientConfig{
		BaseURL: serverURL,
		APIKey:  apiKey,
		Timeout: cfg.Server.WriteTimeout,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.Encode(map[string]string{
					"version": version,
					"go":      runtime.Version(),
				})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listing-parser-cli v%s\n", version)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running API (--server) or of the local stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var h magicparse.HealthResponse
			if serverURL != "" {
				resp, err := remoteClient().Health(ctx)
				if err != nil {
					return err
				}
				h = *resp
			} else {
				rt, err := localRuntime(ctx)
				if err != nil {
					return err
				}
				defer rt.Close()
				h = rt.Health(ctx)
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), h)
			}
			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			defer ui.Close()
			ui.Section("Health")
			ui.KeyValue("Status", h.Status)
			ui.KeyValue("Database", h.Database)
			ui.KeyValue("Cache", h.Cache)
			ui.KeyValue("Knowledge", h.Knowledge)
			if h.Status != "healthy" {
				return fmt.Errorf("service is %s", h.Status)
			}
			return nil
		},
	}
}
