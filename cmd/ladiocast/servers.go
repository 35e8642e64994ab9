package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newServersCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List streaming servers from the configured directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Logging)

			fetcher, err := newFetcher(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			list, err := fetcher.Fetch(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch server list: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tLISTENERS")
			for _, s := range list.Sorted() {
				fmt.Fprintf(w, "%s\t%s\t%d\n", s.Name, s.Addr(), s.Listeners)
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall fetch timeout")
	return cmd
}
