package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rex8112/HumbleScrapperBot/ingest"
	"github.com/rex8112/HumbleScrapperBot/metrics"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|dir>...",
		Short: "Ingest scraped month files (YAML or JSON)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, archive, err := a.openArchive(metrics.NewNoopCollector())
			if err != nil {
				return err
			}
			defer store.Close()

			months, err := ingest.NewFileSource(args...).Fetch(ctx)
			if err != nil {
				return err
			}
			results, err := ingest.NewIngester(archive, a.logger).IngestAll(ctx, months)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}
}

func printResults(w io.Writer, results []ingest.Result) {
	for _, r := range results {
		state := "updated"
		if r.Created {
			state = "new"
		}
		fmt.Fprintf(w, "%s (%s): %d new games\n", r.Month.Title(), state, len(r.Added))
		for _, it := range r.Added {
			fmt.Fprintf(w, "  + %s\n", it.Name())
		}
	}
}
