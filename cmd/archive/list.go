package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rex8112/HumbleScrapperBot/ingest"
	"github.com/rex8112/HumbleScrapperBot/metrics"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print archived months and their games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, archive, err := a.openArchive(metrics.NewNoopCollector())
			if err != nil {
				return err
			}
			defer store.Close()

			months, err := ingest.NewIngester(archive, a.logger).Months(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(months) == 0 {
				fmt.Fprintln(w, "No months archived.")
				return nil
			}
			for _, m := range months {
				fmt.Fprintf(w, "%s  %s\n", m.Title(), m.URL())
				for _, it := range m.Items() {
					fmt.Fprintf(w, "  - %s\n", it.Name())
				}
			}
			return nil
		},
	}
}
