package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ingest"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/mapping"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/telemetry"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ui"
)

var (
	ingestConcurrency int
	ingestThenMap     bool
)

var ingestCmd = &cobra.Command{
	Use:     "ingest <event.json>... | -",
	GroupID: "pipeline",
	Short:   "Run the ingestion pipeline for one or more event files",
	Long: `Ingest processes ingestion events: object-store notifications or API
submissions, one JSON document per file ("-" reads a single event from
stdin). Events for distinct taxonomies run concurrently; events for the
same taxonomy run in submission order.

Example event:
  {
    "source": "s3",
    "bucket": "taxonomy-uploads",
    "key": "Master 1 1 occupation hierarchy.xlsx",
    "payload": {
      "layout": {"columns": ["Group (node 1)", "Occupation (node 3)", "Broad Occupation (profession)"]},
      "rows": [{"Group (node 1)": "Healthcare", "Occupation (node 3)": "Registered Nurse", "Broad Occupation (profession)": "Nursing"}]
    }
  }`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 4, "max taxonomies ingested in parallel")
	ingestCmd.Flags().BoolVar(&ingestThenMap, "map", false, "run the mapping engine after each customer load")
	rootCmd.AddCommand(ingestCmd)
}

type ingestItem struct {
	path  string
	event *types.IngestEvent
	key   types.TaxonomyKey
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	items, err := readEvents(args)
	if err != nil {
		return err
	}

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

	// Same-taxonomy events must not interleave; bucket them and keep
	// each bucket ordered.
	buckets := make(map[types.TaxonomyKey][]ingestItem)
	for _, it := range items {
		buckets[it.key] = append(buckets[it.key], it)
	}

	var mu sync.Mutex
	var responses []*types.IngestResponse
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for _, bucket := range buckets {
		bucket := bucket
		g.Go(func() error {
			for _, it := range bucket {
				resp, err := ingestOne(gctx, coord, engine, pipe, it)
				mu.Lock()
				if err != nil {
					failures++
					ui.Errorf("%s: %v", it.path, err)
				} else {
					responses = append(responses, resp)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(responses, func(i, j int) bool { return responses[i].LoadID < responses[j].LoadID })
	if jsonOutput {
		outputJSON(responses)
	} else {
		for _, r := range responses {
			reportIngest(r)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d events failed", failures, len(items))
	}
	return nil
}

func ingestOne(ctx context.Context, coord *ingest.Coordinator, engine *mapping.Engine,
	pipe *telemetry.Pipeline, it ingestItem) (*types.IngestResponse, error) {

	ui.Debugf("ingesting %s (%s)", it.path, it.key)
	ctx, end := pipe.StartSpan(ctx, "ingest")
	resp, err := coord.Ingest(ctx, it.event)
	end(err)
	pipe.RecordIngest(ctx, resp)
	if err != nil {
		return nil, err
	}

	if ingestThenMap && resp.TaxonomyType == types.TaxonomyCustomer {
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
			return resp, fmt.Errorf("load %d mapped with error: %w", resp.LoadID, merr)
		}
		reportMapping(mresp)
	}
	return resp, nil
}

func reportIngest(r *types.IngestResponse) {
	if r.OK && len(r.Errors) == 0 {
		ui.Successf("load %d: %s %s (%s), %d rows", r.LoadID, r.TaxonomyType, r.TaxonomyID, r.LoadType, r.RowsProcessed)
		return
	}
	if r.OK {
		ui.Warnf("load %d: %s %s (%s), %d rows ok, %d failed", r.LoadID, r.TaxonomyType, r.TaxonomyID, r.LoadType, r.RowsProcessed, len(r.Errors))
		for _, e := range r.Errors {
			ui.Infof("  %s", e)
		}
		return
	}
	ui.Errorf("load %d: all rows failed", r.LoadID)
}

func readEvents(paths []string) ([]ingestItem, error) {
	var items []ingestItem
	for _, path := range paths {
		var raw []byte
		var err error
		if path == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, err
		}
		ev := &types.IngestEvent{}
		if err := json.Unmarshal(raw, ev); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		identity, err := ingest.ResolveIdentity(ev)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		items = append(items, ingestItem{
			path:  path,
			event: ev,
			key:   types.TaxonomyKey{CustomerID: identity.CustomerID, TaxonomyID: identity.TaxonomyID},
		})
	}
	return items, nil
}
