package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/config"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/lockfile"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage/sqlite"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/telemetry"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ui"
)

// Version is set via -ldflags at release build time.
var Version = "dev"

var (
	cfg        *config.Config
	dbPathFlag string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "taxo",
	Short:         "Healthcare profession taxonomy pipelines",
	Long: `taxo ingests Master and customer profession taxonomies, maps customer
nodes onto the Master hierarchy with prioritized rules, and maintains
versioned Silver state plus a Gold projection of approved mappings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if dbPathFlag != "" {
			cfg.DBPath = dbPathFlag
		}
		if err := telemetry.Init(cmd.Context(), "taxo", Version); err != nil {
			ui.Warnf("telemetry disabled: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database path (default taxo.db, or TAXO_DB)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable JSON output on stdout")
	rootCmd.PersistentFlags().BoolVar(&ui.Verbose, "verbose", false, "per-event diagnostics on stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipelines:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)

	rootCmd.SetErrPrefix(ui.RenderFail("Error:"))
}

// openStore opens the configured database. Writer commands should
// pass lock=true to serialize against other taxo processes; the lock
// is released by the returned cleanup function.
func openStore(ctx context.Context, lock bool) (storage.Store, func(), error) {
	var lk *lockfile.Lock
	if lock && cfg.DBPath != ":memory:" {
		var err error
		lk, err = lockfile.Acquire(ctx, cfg.DBPath, cfg.LockTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("lock %s: %w", cfg.DBPath, err)
		}
	}
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		_ = lk.Release()
		return nil, nil, err
	}
	cleanup := func() {
		if cerr := store.Close(); cerr != nil {
			ui.Warnf("close database: %v", cerr)
		}
		if rerr := lk.Release(); rerr != nil {
			ui.Warnf("release lock: %v", rerr)
		}
	}
	return store, cleanup, nil
}

// outputJSON pretty-prints v on stdout.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		ui.Errorf("encode output: %v", err)
	}
}
