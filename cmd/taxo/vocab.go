package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ui"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/vocab"
)

var vocabCmd = &cobra.Command{
	Use:     "vocab",
	GroupID: "inspect",
	Short:   "Extract matcher vocabularies from the active Master taxonomy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		master, err := store.ActiveMasterTaxonomy(cmd.Context())
		if err != nil {
			return err
		}
		v, err := vocab.NewExtractor(store).Extract(cmd.Context(), master.Key())
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(map[string][]string{
				"strong_heads":    sorted(v.StrongHeads),
				"qualified_heads": sorted(v.QualifiedHeads),
				"qualifiers":      sorted(v.Qualifiers),
			})
			return nil
		}
		printTerms("strong heads", v.StrongHeads)
		printTerms("qualified heads", v.QualifiedHeads)
		printTerms("qualifiers", v.Qualifiers)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(vocabCmd)
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for term := range set {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

func printTerms(title string, set map[string]struct{}) {
	fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("%s (%d)", title, len(set))))
	for _, term := range sorted(set) {
		fmt.Println("  " + term)
	}
}
