package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"horoscopebot/internal/storage"
	logx "horoscopebot/pkg/logx"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent logged messages (sqlite run log only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadLenient(configPath)
		if err != nil {
			return err
		}
		if cfg.Storage.Driver != "sqlite" && cfg.Storage.Driver != "sqlite3" {
			return errors.Newf("storage driver %q cannot list entries; use sqlite", cfg.Storage.Driver)
		}
		st, err := storage.Open(storage.Config{
			Driver: cfg.Storage.Driver,
			Path:   cfg.Storage.Path,
		}, logx.Nop())
		if err != nil {
			return err
		}
		defer st.Close()

		lister, ok := st.(storage.Lister)
		if !ok {
			return errors.Newf("storage driver %q cannot list entries", cfg.Storage.Driver)
		}
		entries, err := lister.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "=== %s (%s) ===\n%s\n\n", e.At.Local().Format("2006-01-02 15:04"), e.Kind, e.Body)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "no runs logged yet")
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 5, "number of entries to show")
}
