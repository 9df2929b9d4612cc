package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ui"
)

var loadsCmd = &cobra.Command{
	Use:     "loads",
	GroupID: "inspect",
	Short:   "Inspect Bronze loads and their rows",
}

var loadsLimit int

var loadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent loads, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		loads, err := store.ListLoads(cmd.Context(), loadsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(loads)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tCUSTOMER\tTAXONOMY\tLOAD\tSTATUS\tROWS\tSTARTED")
		for _, l := range loads {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				l.ID, l.Type, l.CustomerID, l.TaxonomyID, l.LoadType, l.Status,
				l.RowCount, l.StartedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var loadsShowRows bool

var loadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one load's header and provenance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad load id %q", args[0])
		}
		store, cleanup, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		load, err := store.GetLoad(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOutput && !loadsShowRows {
			outputJSON(load)
			return nil
		}

		var rows []*types.RawRow
		if loadsShowRows {
			if rows, err = store.ListRawRows(cmd.Context(), id); err != nil {
				return err
			}
		}
		if jsonOutput {
			outputJSON(map[string]any{"load": load, "rows": rows})
			return nil
		}

		outputJSON(load)
		for _, r := range rows {
			marker := ui.RenderPass(ui.IconPass)
			if r.Status == types.RowFailed {
				marker = ui.RenderFail(ui.IconFail)
			}
			fmt.Printf("%s row %d (%s)\n", marker, r.ID, r.Status)
			outputJSON(r.Doc)
		}
		return nil
	},
}

var versionsCmd = &cobra.Command{
	Use:     "versions <customer-id> <taxonomy-id>",
	GroupID: "inspect",
	Short:   "Show a taxonomy's version chain",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		key := types.TaxonomyKey{CustomerID: args[0], TaxonomyID: args[1]}
		versions, err := store.ListTaxonomyVersions(cmd.Context(), key)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(versions)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tCHANGE\tLOAD\tPROCESSED\tNEW\tCHANGED\tFAILED\tOPEN")
		for _, v := range versions {
			open := ""
			if v.ToTS == nil {
				open = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				v.VersionNumber, v.ChangeType, v.LoadID,
				v.Counters.Processed, v.Counters.New, v.Counters.Changed, v.Counters.Failed, open)
		}
		return w.Flush()
	},
}

var goldCmd = &cobra.Command{
	Use:     "gold",
	GroupID: "inspect",
	Short:   "Show the Gold projection of approved mappings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		gold, err := store.ListGoldMappings(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(gold)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MAPPING\tMASTER NODE\tCHILD NODE")
		for _, g := range gold {
			fmt.Fprintf(w, "%d\t%d\t%d\n", g.MappingID, g.MasterNodeID, g.ChildNodeID)
		}
		return w.Flush()
	},
}

func init() {
	loadsListCmd.Flags().IntVar(&loadsLimit, "limit", 20, "max loads to list")
	loadsShowCmd.Flags().BoolVar(&loadsShowRows, "rows", false, "include the load's Bronze rows")
	loadsCmd.AddCommand(loadsListCmd, loadsShowCmd)
	rootCmd.AddCommand(loadsCmd, versionsCmd, goldCmd)
}
