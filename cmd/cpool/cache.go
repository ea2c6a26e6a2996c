package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/carpool/internal/cache"
	"github.com/zulandar/carpool/internal/config"
	"github.com/zulandar/carpool/internal/db"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the local trip cache",
	}

	cmd.AddCommand(newCacheShowCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

// openCache opens only the cache; the cache commands never talk to the
// backend.
func openCache(configPath string) (*cache.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Open(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return cache.New(gormDB)
}

func newCacheShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the cached current trip and its chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache(configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			trip, ok, err := store.CurrentTrip()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "No current trip cached")
				return nil
			}
			printTrip(out, trip)
			if !trip.HasChat() {
				return nil
			}

			msgs, err := store.Messages(*trip.ChatID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d cached chat messages\n", len(msgs))
			for _, m := range msgs {
				mark := ""
				if m.Kind == cache.KindPending {
					mark = " (pending)"
				}
				fmt.Fprintf(out, "  %s: %s%s\n", m.AuthorName, m.Content, mark)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the cached current trip and its chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache(configPath)
			if err != nil {
				return err
			}

			trip, ok, err := store.CurrentTrip()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache already empty")
				return nil
			}
			if trip.HasChat() {
				if err := store.ClearMessages(*trip.ChatID); err != nil {
					return err
				}
			}
			if err := store.ClearCurrentTrip(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared trip %d from cache\n", trip.ID)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
