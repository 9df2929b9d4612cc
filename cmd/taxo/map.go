package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/mapping"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/telemetry"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ui"
)

var mapReq = types.MapRequest{TaxonomyType: types.TaxonomyCustomer}
var mapLoadType string

var mapCmd = &cobra.Command{
	Use:     "map",
	GroupID: "pipeline",
	Short:   "Run the mapping engine for one customer taxonomy load",
	Long: `Map evaluates the prioritized rules for every active profession node
of a customer taxonomy, records mapping state transitions and their
version chains, and refreshes the Gold projection.

With --node-ids (on an updated load), mapping is restricted to the
nodes that load touched; omit it to re-evaluate the whole taxonomy.`,
	RunE: runMap,
}

func init() {
	mapCmd.Flags().Int64Var(&mapReq.LoadID, "load", 0, "load id the run is tied to")
	mapCmd.Flags().StringVar(&mapReq.CustomerID, "customer", "", "customer id")
	mapCmd.Flags().StringVar(&mapReq.TaxonomyID, "taxonomy", "", "taxonomy id")
	mapCmd.Flags().StringVar(&mapLoadType, "load-type", string(types.LoadUpdated), "new or updated")
	mapCmd.Flags().Int64SliceVar(&mapReq.NodeIDs, "node-ids", nil, "restrict to these node ids")
	_ = mapCmd.MarkFlagRequired("load")
	_ = mapCmd.MarkFlagRequired("customer")
	_ = mapCmd.MarkFlagRequired("taxonomy")
	rootCmd.AddCommand(mapCmd)
}

func runMap(cmd *cobra.Command, _ []string) error {
	mapReq.LoadType = types.LoadType(mapLoadType)
	if mapReq.LoadType != types.LoadNew && mapReq.LoadType != types.LoadUpdated {
		return fmt.Errorf("unknown load type %q", mapLoadType)
	}

	ctx := cmd.Context()
	store, cleanup, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	pipe := telemetry.NewPipeline()
	sctx, end := pipe.StartSpan(ctx, "map")
	resp, err := mapping.NewEngine(store, cfg.MappingLevel).Map(sctx, &mapReq)
	end(err)
	pipe.RecordMapping(sctx, resp)
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(resp)
	} else {
		reportMapping(resp)
	}
	if !resp.Success {
		return fmt.Errorf("mapping failed for all %d nodes", resp.Results.NodesProcessed)
	}
	return nil
}

func reportMapping(r *types.MapResponse) {
	res := r.Results
	line := fmt.Sprintf("mapped load %d: %d nodes (%d created, %d updated, %d deactivated, %d unchanged) in %dms",
		r.LoadID, res.NodesProcessed, res.MappingsCreated, res.MappingsUpdated,
		res.MappingsDeactivated, res.MappingsUnchanged, r.ProcessingTimeMS)
	switch {
	case res.Failures == 0:
		ui.Successf("%s", line)
	case r.Success:
		ui.Warnf("%s, %d failed", line, res.Failures)
	default:
		ui.Errorf("%s, %d failed", line, res.Failures)
	}
	for _, e := range r.Errors {
		ui.Infof("  %s", e)
	}
}
