package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/export"
)

type exportOptions struct {
	format      string
	output      string
	namespaces  []string
	withColumns bool
	withRows    bool
}

func exportCmd(flags *globalFlags) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export semantic types as RDF",
		Long: `Export the semantic types in the configured store as RDF.

Formats: turtle (default), ntriples, jsonld. The format is inferred from the
--output file extension when --format is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format == "" {
				if _, err := export.ParseFormat(filepath.Ext(opts.output)); err == nil {
					opts.format = filepath.Ext(opts.output)
				}
			}
			format, err := export.ParseFormat(opts.format)
			if err != nil {
				return err
			}

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

			out := cmd.OutOrStdout()
			if opts.output != "" {
				f, err := os.Create(opts.output)
				if err != nil {
					return fmt.Errorf("create %s: %w", opts.output, err)
				}
				defer f.Close()
				out = f
			}
			return exportCatalog(ctx, s.catalog, format, opts, out)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (turtle, ntriples, jsonld)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().StringSliceVar(&opts.namespaces, "namespace", nil, "Only export types in these namespaces")
	cmd.Flags().BoolVar(&opts.withColumns, "columns", true, "Include columns")
	cmd.Flags().BoolVar(&opts.withRows, "row-counts", false, "Include column row counts")

	return cmd
}

// exportCatalog writes the selected types to out.
func exportCatalog(ctx context.Context, cat *catalog.Catalog, format export.Format, opts exportOptions, out io.Writer) error {
	listings, err := cat.ListTypes(ctx, catalog.TypeQuery{
		Types:             catalog.TypeFilter{Namespaces: opts.namespaces},
		IncludeColumns:    opts.withColumns,
		IncludeColumnData: opts.withRows,
	})
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	exporter := export.NewExporter()
	exporter.AddListings(listings, opts.withRows)
	return exporter.Write(out, format)
}
