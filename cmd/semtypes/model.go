package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/modelwatch"
)

func modelCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Ingest bulk model descriptions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file|glob>...",
		Short: "Ingest model files into the catalog",
		Long: `Ingest model files directly into the configured store.

Arguments may be file paths or doublestar globs such as "models/**/*.json".
A model whose id is already stored is reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			summary, err := importFiles(ctx, s.catalog, args, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d imported, %d skipped\n", summary.Imported, summary.Skipped)
			return nil
		},
	})

	var (
		pattern  string
		existing bool
	)
	watch := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and ingest model files dropped into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*flags)
			if err != nil {
				return err
			}
			signalCtx, signalCancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer signalCancel()

			s, err := openStore(signalCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer s.close(context.Background())

			w, err := modelwatch.NewWatcher(modelwatch.Config{
				Dir:           args[0],
				Pattern:       pattern,
				DebounceDelay: cfg.Watch.Debounce,
				Logger:        logger,
			}, s.catalog)
			if err != nil {
				return err
			}
			return runWatch(signalCtx, w, existing, cmd.OutOrStdout(), logger)
		},
	}
	watch.Flags().StringVar(&pattern, "pattern", modelwatch.DefaultPattern, "Doublestar pattern selecting model files")
	watch.Flags().BoolVar(&existing, "existing", true, "Ingest matching files already present before watching")
	cmd.AddCommand(watch)

	return cmd
}

// importSummary counts files by outcome.
type importSummary struct {
	Imported int
	Skipped  int
}

// importFiles ingests every file named or matched by patterns. A model that
// already exists is reported and skipped; any other failure stops the import.
func importFiles(ctx context.Context, ingester modelwatch.Ingester, patterns []string, out io.Writer) (importSummary, error) {
	var summary importSummary

	for _, pattern := range patterns {
		paths, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return summary, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(paths) == 0 {
			return summary, fmt.Errorf("no model files match %q", pattern)
		}

		for _, path := range paths {
			body, err := os.ReadFile(path)
			if err != nil {
				return summary, fmt.Errorf("read %s: %w", path, err)
			}
			result, err := ingester.IngestModel(ctx, body)
			if errors.Is(err, catalog.ErrConflict) {
				summary.Skipped++
				fmt.Fprintf(out, "%s: skipped: %v\n", path, err)
				continue
			}
			if err != nil {
				return summary, fmt.Errorf("ingest %s: %w", path, err)
			}
			summary.Imported++
			fmt.Fprintf(out, "%s: %s\n", path, formatResult(result))
		}
	}
	return summary, nil
}

// runWatch ingests existing files if asked, then reports watch events until
// ctx is done.
func runWatch(ctx context.Context, w *modelwatch.Watcher, existing bool, out io.Writer, logger *slog.Logger) error {
	if existing {
		events, err := w.IngestExisting(ctx)
		if err != nil {
			_ = w.Stop()
			return err
		}
		for _, ev := range events {
			printEvent(out, ev)
		}
	}

	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping model watcher")
			return w.Stop()
		case ev, ok := <-w.Events():
			if !ok {
				return w.Stop()
			}
			printEvent(out, ev)
		}
	}
}

func printEvent(out io.Writer, ev modelwatch.Event) {
	if ev.Error != nil {
		fmt.Fprintf(out, "%s (%s): %v\n", ev.Path, ev.Operation, ev.Error)
		return
	}
	fmt.Fprintf(out, "%s (%s): %s\n", ev.Path, ev.Operation, formatResult(ev.Result))
}

func formatResult(r catalog.IngestResult) string {
	return fmt.Sprintf("types created=%d existed=%d, columns created=%d existed=%d",
		r.TypesCreated, r.TypesExisted, r.ColumnsCreated, r.ColumnsExisted)
}
