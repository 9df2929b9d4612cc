package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ingest"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/mapping"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/telemetry"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ui"
)

// Writers may still be mid-copy when the create event fires; wait for
// the file size to settle before reading.
const settleDelay = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:     "watch <dir>",
	GroupID: "pipeline",
	Short:   "Watch a drop directory and ingest event files as they arrive",
	Long: `Watch monitors a directory for *.json ingestion events (the same shape
"taxo ingest" accepts) and runs the pipeline on each new file. Customer
loads are mapped automatically. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}

	ctx := cmd.Context()
	store, cleanup, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	coord := ingest.NewCoordinator(store, ingest.Options{
		MaxDepth:         cfg.MaxDepth,
		CustomerLevel:    cfg.MappingLevel,
		RowFailurePolicy: cfg.RowFailurePolicy,
		Timeout:          cfg.LoadTimeout,
	})
	engine := mapping.NewEngine(store, cfg.MappingLevel)
	pipe := telemetry.NewPipeline()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	ui.Infof("watching %s", dir)
	seen := make(map[string]time.Time)
	for {
		select {
		case <-sig:
			ui.Infof("stopping")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ui.Warnf("watch: %v", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
				continue
			}
			// Editors fire several write events per save; debounce.
			if t, dup := seen[ev.Name]; dup && time.Since(t) < settleDelay {
				continue
			}
			seen[ev.Name] = time.Now()
			ui.Debugf("event %s %s", ev.Op, ev.Name)
			time.Sleep(settleDelay)
			watchIngest(cmd, coord, engine, pipe, ev.Name)
		}
	}
}

func watchIngest(cmd *cobra.Command, coord *ingest.Coordinator, engine *mapping.Engine,
	pipe *telemetry.Pipeline, path string) {

	raw, err := os.ReadFile(path)
	if err != nil {
		ui.Errorf("%s: %v", path, err)
		return
	}
	event := &types.IngestEvent{}
	if err := json.Unmarshal(raw, event); err != nil {
		ui.Errorf("%s: %v", path, err)
		return
	}

	ctx, end := pipe.StartSpan(cmd.Context(), "ingest")
	resp, err := coord.Ingest(ctx, event)
	end(err)
	pipe.RecordIngest(ctx, resp)
	if err != nil {
		ui.Errorf("%s: %v", path, err)
		return
	}
	reportIngest(resp)

	if resp.TaxonomyType != types.TaxonomyCustomer {
		return
	}
	mctx, mend := pipe.StartSpan(ctx, "map")
	mresp, merr := engine.Map(mctx, &types.MapRequest{
		LoadID:       resp.LoadID,
		CustomerID:   resp.CustomerID,
		TaxonomyID:   resp.TaxonomyID,
		LoadType:     resp.LoadType,
		TaxonomyType: resp.TaxonomyType,
		NodeIDs:      resp.NodeIDs,
	})
	mend(merr)
	pipe.RecordMapping(mctx, mresp)
	if merr != nil {
		ui.Errorf("map load %d: %v", resp.LoadID, merr)
		return
	}
	reportMapping(mresp)
}
