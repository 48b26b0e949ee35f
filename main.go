package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/LabyrinthianWebsite/fantastic-waddle/config"
	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"github.com/LabyrinthianWebsite/fantastic-waddle/realtime"
	"github.com/LabyrinthianWebsite/fantastic-waddle/services"
	"github.com/gosimple/slug"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(levelFlag string) (config.Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Info("No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if levelFlag != "" {
		logging.SetLevel(logging.ParseLevel(levelFlag))
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var logLevel string

	serve := newServeCommand(&logLevel)
	cmd := &cobra.Command{
		Use:           "catalog",
		Short:         "Media catalog server and archive ingestion",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(serve, newIngestCommand(&logLevel), newCreateStudioCommand(&logLevel), newCreateModelCommand(&logLevel))
	return cmd
}

func newServeCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*logLevel)
			if err != nil {
				return err
			}
			hub := realtime.NewHub()
			a, err := newApp(cfg, hub)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(cmd.Context(), a, hub)
		},
	}
}

// progressPrinter reports ingestion events on the log when there is no websocket audience
type progressPrinter struct{}

func (progressPrinter) Notify(e realtime.Event) {
	switch {
	case e.Error != "":
		logging.Warn("ingest: %s %s/%s: %s", e.Status, e.Set, e.File, e.Error)
	case e.File != "":
		logging.Debug("ingest: %s %s/%s", e.Status, e.Set, e.File)
	default:
		logging.Info("ingest: %s %s (processed %d, skipped %d)", e.Status, e.Set, e.Processed, e.Skipped)
	}
}

func newIngestCommand(logLevel *string) *cobra.Command {
	var (
		modelID     uint
		keepArchive bool
	)
	cmd := &cobra.Command{
		Use:   "ingest --model <id> <archive.zip>",
		Short: "Ingest a zip archive for a model without going through HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelID == 0 {
				return fmt.Errorf("--model is required")
			}
			cfg, err := loadConfig(*logLevel)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, progressPrinter{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := a.ingestion.IngestArchive(ctx, modelID, args[0], services.IngestOptions{
				JobID:       "cli",
				KeepArchive: keepArchive,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().UintVar(&modelID, "model", 0, "ID of the model receiving the archive")
	cmd.Flags().BoolVar(&keepArchive, "keep", true, "leave the archive file in place after ingestion")
	return cmd
}

func newCreateStudioCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "create-studio <name>",
		Short: "Create a studio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*logLevel)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, progressPrinter{})
			if err != nil {
				return err
			}
			defer a.Close()

			studio := &models.Studio{Name: args[0], Slug: slug.Make(args[0])}
			if err := a.studioRepo.Create(studio); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "studio %d (%s)\n", studio.ID, studio.Slug)
			return nil
		},
	}
}

func newCreateModelCommand(logLevel *string) *cobra.Command {
	var studioID uint
	cmd := &cobra.Command{
		Use:   "create-model <name>",
		Short: "Create a model, optionally owned by a studio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*logLevel)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, progressPrinter{})
			if err != nil {
				return err
			}
			defer a.Close()

			model := &models.Model{Name: args[0], Slug: slug.Make(args[0]), IsActive: true}
			if studioID != 0 {
				if _, err := a.studioRepo.GetByID(studioID); err != nil {
					return fmt.Errorf("studio %d: %w", studioID, err)
				}
				model.StudioID = &studioID
			}
			if err := a.modelRepo.Create(model); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model %d (%s)\n", model.ID, model.Slug)
			return nil
		},
	}
	cmd.Flags().UintVar(&studioID, "studio", 0, "owning studio ID (omit for an independent model)")
	return cmd
}
