package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/mcp"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply the embedded schema migrations to the configured SQLite or
Postgres database. Use --status to list them without applying.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			driver := cfg.Database.Driver
			if driver == "none" {
				return errors.New("no database configured (database.driver is none)")
			}

			db, err := storage.Open(ctx, driver, cfg.DatabaseDSN(), storage.Options{
				MaxOpenConns:    cfg.Database.Postgres.MaxOpenConns,
				MaxIdleConns:    cfg.Database.Postgres.MaxIdleConns,
				ConnMaxLifetime: cfg.Database.Postgres.ConnMaxLifetime,
			})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			migrator := storage.NewMigrator(db, driver)
			ui := NewUI(cmd.OutOrStdout(), outputJSON, noColor)
			defer ui.Close()

			if statusOnly {
				status, err := migrator.Status(ctx)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(cmd.OutOrStdout(), status)
				}
				for _, name := range status.Applied {
					ui.Success("%s", name)
				}
				for _, name := range status.Pending {
					ui.Step("%s (pending)", name)
				}
				return nil
			}

			logger.Info().Str("driver", driver).Msg("Running migrations")
			stop := ui.Spinner("Migrating " + driver)
			ran, err := migrator.Up(ctx)
			stop()
			if err != nil {
				return err
			}

			if outputJSON {
				if ran == nil {
					ran = []string{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"applied": ran})
			}
			if len(ran) == 0 {
				ui.Info("Database is up to date")
				return nil
			}
			for _, name := range ran {
				ui.Success("Applied %s", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "show migration status without applying")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve listing analysis to agents over MCP (stdio)",
		Long: `mcp runs a Model Context Protocol server on stdin/stdout exposing the
analyze_listing and knowledge_stats tools. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := localRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Start(ctx); err != nil {
				return err
			}

			s := mcp.NewServer(mcp.ServerConfig{Service: rt.Service, Version: version})
			logger.Info().Str("knowledge", rt.Service.Knowledge().Version()).Msg("MCP server listening on stdio")

			err = server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, ctx.Err()) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}
