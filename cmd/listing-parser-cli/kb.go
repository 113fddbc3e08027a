package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/listing"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

func newKBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the knowledge base",
		Long: `The knowledge base lists known vehicle makes and models and maps
phrases to categories. It is read from a YAML/JSON file or from the database.`,
	}

	cmd.AddCommand(newKBImportCmd())
	cmd.AddCommand(newKBExportCmd())
	cmd.AddCommand(newKBStatsCmd())
	cmd.AddCommand(newKBValidateCmd())
	cmd.AddCommand(newKBReloadCmd())
	return cmd
}

// readKBFile decodes a knowledge-base file, picking the format from its
// extension.
func readKBFile(path string) (*knowledge.KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return knowledge.Decode(data, knowledge.FormatFor(path))
}

// databaseRuntime builds a runtime that must have a database.
func databaseRuntime(ctx context.Context) (*listing.Runtime, error) {
	if cfg.Database.Driver == "none" {
		return nil, errors.New("no database configured (database.driver is none)")
	}
	return localRuntime(ctx)
}

func newKBImportCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a knowledge-base file into the database",
		Long: `Import upserts makes, models and category synonyms from a YAML or JSON
file. With --replace the stored knowledge base is cleared first.

When the service reads its knowledge base from the database, the import is
loaded right away and announced to other instances.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(cmd.OutOrStdout(), outputJSON, noColor)
			defer ui.Close()

			kb, err := readKBFile(args[0])
			if err != nil {
				return err
			}
			stats := knowledge.Compile(kb).Stats()

			rt, err := databaseRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			stop := ui.Spinner("Importing " + args[0])
			err = rt.Knowledge.ImportSnapshot(ctx, kb, replace)
			stop()
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			logger.Info().
				Str("file", args[0]).
				Str("version", stats.Version).
				Bool("replace", replace).
				Msg("Imported knowledge base")

			info := rt.Service.KnowledgeInfo()
			if cfg.Knowledge.Source == "database" {
				info, err = rt.Service.ReloadKnowledge(ctx)
				if err != nil {
					return fmt.Errorf("reload after import: %w", err)
				}
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"imported": stats,
					"active":   info,
				})
			}
			ui.Success("Imported %d makes, %d models and %d synonyms", stats.Makes, stats.Models, stats.Synonyms)
			if cfg.Knowledge.Source == "database" {
				ui.Info("Active knowledge base is now %s", displayVersion(info.Version))
			} else {
				ui.Info("Knowledge source is %q; set knowledge.source to database to serve the import", cfg.Knowledge.Source)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "clear the stored knowledge base before importing")
	return cmd
}

func newKBExportCmd() *cobra.Command {
	var (
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the database knowledge base to YAML or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := databaseRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			kb, err := rt.Knowledge.LoadSnapshot(ctx)
			if err != nil {
				return fmt.Errorf("load knowledge base: %w", err)
			}

			f := knowledge.Format(format)
			if format == "" {
				f = knowledge.FormatFor(output)
			}
			data, err := knowledge.Encode(kb, f)
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			ui := NewUI(cmd.ErrOrStderr(), outputJSON, noColor)
			ui.Success("Exported knowledge base %s to %s", displayVersion(kb.Version), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&format, "format", "", "yaml or json (default: from the output extension)")
	return cmd
}

func newKBStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the knowledge base in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				info magicparse.KnowledgeInfo
				idx  *knowledge.Index
			)
			if serverURL != "" {
				resp, err := remoteClient().Knowledge(ctx)
				if err != nil {
					return err
				}
				info = *resp
			} else {
				rt, err := localRuntime(ctx)
				if err != nil {
					return err
				}
				defer rt.Close()
				info = rt.Service.KnowledgeInfo()
				idx = rt.Service.Knowledge()
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			defer ui.Close()
			renderKnowledgeInfo(ui, info)
			if makes := idx.Makes(); len(makes) > 0 {
				sort.Strings(makes)
				rows := make([][]string, 0, len(makes))
				for _, m := range makes {
					rows = append(rows, []string{m, strconv.Itoa(len(idx.Models(m)))})
				}
				ui.Newline()
				ui.Table([]string{"Make", "Models"}, rows)
			}
			return nil
		},
	}
}

func newKBValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a knowledge-base file loads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := readKBFile(args[0])
			if err != nil {
				return err
			}
			stats := knowledge.Compile(kb).Stats()

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			ui.Success("%s is valid", args[0])
			ui.KeyValue("Version", displayVersion(stats.Version))
			ui.KeyValue("Makes", stats.Makes)
			ui.KeyValue("Models", stats.Models)
			ui.KeyValue("Synonyms", stats.Synonyms)
			return nil
		},
	}
}

func newKBReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the knowledge base of a running API (--server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				return errors.New("reload needs --server")
			}
			info, err := remoteClient().ReloadKnowledge(cmd.Context())
			if err != nil {
				return err
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			ui.Success("Reloaded knowledge base %s", displayVersion(info.Version))
			return nil
		},
	}
}

func renderKnowledgeInfo(ui *UI, info magicparse.KnowledgeInfo) {
	ui.Section("Knowledge base")
	ui.KeyValue("Version", displayVersion(info.Version))
	if info.Source != "" {
		ui.KeyValue("Source", info.Source)
	}
	ui.KeyValue("Makes", info.Makes)
	ui.KeyValue("Models", info.Models)
	ui.KeyValue("Synonyms", info.Synonyms)
	if info.LoadedAt != nil {
		ui.KeyValue("Loaded", info.LoadedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

func displayVersion(v string) string {
	if v == "" {
		return "(unversioned)"
	}
	return strconv.Quote(v)
}
