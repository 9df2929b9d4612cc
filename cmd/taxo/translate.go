package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/mapping"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ui"
)

var (
	translateFrom types.TaxonomyKey
	translateTo   types.TaxonomyKey
)

var translateCmd = &cobra.Command{
	Use:     "translate <value>",
	GroupID: "inspect",
	Short:   "Translate a profession value between customer taxonomies",
	Long: `Translate resolves a source taxonomy value to its Master node via the
active mapping, then lists the target taxonomy's nodes mapped to the
same Master node. Answers "License X in taxonomy A is what in B?".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := mapping.Translate(cmd.Context(), store, translateFrom, args[0], translateTo)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(results)
			return nil
		}
		if len(results) == 0 {
			ui.Warnf("no equivalent of %q in %s", args[0], translateTo)
			return nil
		}
		for _, t := range results {
			fmt.Printf("%s  %s  %s\n",
				args[0], ui.RenderMuted("→ "+t.MasterValue+" →"), ui.RenderAccent(t.TargetValue))
		}
		return nil
	},
}

func init() {
	translateCmd.Flags().StringVar(&translateFrom.CustomerID, "from-customer", "", "source customer id")
	translateCmd.Flags().StringVar(&translateFrom.TaxonomyID, "from-taxonomy", "", "source taxonomy id")
	translateCmd.Flags().StringVar(&translateTo.CustomerID, "to-customer", "", "target customer id")
	translateCmd.Flags().StringVar(&translateTo.TaxonomyID, "to-taxonomy", "", "target taxonomy id")
	for _, f := range []string{"from-customer", "from-taxonomy", "to-customer", "to-taxonomy"} {
		_ = translateCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(translateCmd)
}
