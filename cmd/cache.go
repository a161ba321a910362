package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/competitor-intel/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the discovery/review cache",
}

// -- cache purge --

var cachePurgeCmd = &cobra.Command{
	Use:   "purge <prefix>",
	Short: "Delete cache entries whose key starts with prefix (e.g. reviews:ChIJ...)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cache.Open(cmd.Context(), cfg.Cache)
		defer c.Close() //nolint:errcheck

		return purgePrefix(cmd.Context(), c, args[0], os.Stdout)
	},
}

// -- cache purge-expired --

var cachePurgeExpiredCmd = &cobra.Command{
	Use:   "purge-expired",
	Short: "Remove expired rows from SQL-backed caches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := cache.Open(cmd.Context(), cfg.Cache)
		defer c.Close() //nolint:errcheck

		return purgeExpired(cmd.Context(), c, os.Stdout)
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	cacheCmd.AddCommand(cachePurgeExpiredCmd)
	rootCmd.AddCommand(cacheCmd)
}

func purgePrefix(ctx context.Context, c cache.Cache, prefix string, out io.Writer) error {
	if prefix == "" {
		return eris.New("cache purge: prefix must not be empty")
	}
	n := c.DeleteByPrefix(ctx, prefix)
	fmt.Fprintf(out, "deleted %d entries with prefix %q\n", n, prefix)
	return nil
}

func purgeExpired(ctx context.Context, c cache.Cache, out io.Writer) error {
	p, ok := c.(cache.Purger)
	if !ok {
		fmt.Fprintln(out, "cache backend expires entries natively; nothing to purge")
		return nil
	}
	n, err := p.PurgeExpired(ctx)
	if err != nil {
		return eris.Wrap(err, "cache purge-expired")
	}
	fmt.Fprintf(out, "purged %d expired entries\n", n)
	return nil
}
