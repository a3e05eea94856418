package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rickgao/oracle-monitor/internal/feeds"
	"github.com/rickgao/oracle-monitor/internal/model"
)

func newFeedsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "Print the invitation to feed mapping of every configured oracle",
		Long: `Resolve each oracle's price-feed invitations against the chain's
instance registry and print the result.

Example:
  $ oracle-monitor feeds --config configs/monitor.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			oracles, err := a.cfg.LoadOracles()
			if err != nil {
				return fmt.Errorf("load oracles: %w", err)
			}

			resolveErr := feeds.NewResolver(a.client, a.logger).ResolveAll(ctx, oracles)
			printFeeds(cmd.OutOrStdout(), oracles)
			return resolveErr
		},
	}
}

func printFeeds(w io.Writer, oracles []*model.Oracle) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORACLE\tADDRESS\tINVITATION\tFEED")
	for _, o := range oracles {
		invitations := make([]string, 0, len(o.Feeds))
		for id := range o.Feeds {
			invitations = append(invitations, id)
		}
		sort.Strings(invitations)
		if len(invitations) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\n", o.Name, o.Address)
		}
		for _, id := range invitations {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Name, o.Address, id, o.Feeds[id])
		}
	}
	tw.Flush()
}

func newPriceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "price [feed]...",
		Short: "Print the price currently published by one or more feeds",
		Long: `Read and decode the latest quote of each feed.

Example:
  $ oracle-monitor price ATOM-USD
  $ oracle-monitor price ATOM-USD OSMO-USD`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			decoder := feeds.NewDecoder(a.client, a.logger)
			quotes := make([]feeds.Quote, 0, len(args))
			var errs []error
			for _, feed := range slices.Compact(slices.Sorted(slices.Values(args))) {
				q, err := decoder.Decode(ctx, feed)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				quotes = append(quotes, q)
			}
			printQuotes(cmd.OutOrStdout(), quotes)
			return errors.Join(errs...)
		},
	}
}

func printQuotes(w io.Writer, quotes []feeds.Quote) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEED\tPRICE\tAMOUNT_IN\tAMOUNT_OUT\tHEIGHT")
	for _, q := range quotes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", q.Feed, q.Price.String(), q.AmountIn.String(), q.AmountOut.String(), q.BlockHeight)
	}
	tw.Flush()
}
