// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cafe-collector/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the response cache",
	Long: `Cache maintains the three cache tiers: api_responses (model replies),
processed_data (search snapshots and finished reviews) and geocoding.`,
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Remove expired entries from every tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.EvictExpired(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "evicted %d expired entries\n", n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry of one tier, or of all tiers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("tier")
		tiers := cache.Tiers
		if name != "" {
			t := cache.Tier(name)
			if !t.Valid() {
				return fmt.Errorf("unknown tier %q (want api_responses, processed_data or geocoding)", name)
			}
			tiers = []cache.Tier{t}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, t := range tiers {
			n, err := store.Clear(context.Background(), t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries from %s\n", n, t)
		}
		return nil
	},
}

func openStore() (cache.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.Open(cfg.Cache)
}

func init() {
	cacheClearCmd.Flags().String("tier", "", "tier to clear: api_responses, processed_data or geocoding (default all)")

	cacheCmd.AddCommand(cacheEvictCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
