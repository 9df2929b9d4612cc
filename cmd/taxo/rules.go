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

var rulesCmd = &cobra.Command{
	Use:     "rules",
	GroupID: "admin",
	Short:   "Administer mapping rules and their assignments",
	Long: `Rules are named match commands (equals, contains, startswith,
endswith, regex) the mapping engine evaluates against Master nodes.
Assignments bind a rule to a (master node type, child node type) pair
with a priority; lower priority number wins, first match wins.`,
}

var newRule types.MappingRule

var rulesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		newRule.Name = args[0]
		newRule.Enabled = true
		store, cleanup, err := openStore(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := store.CreateRule(cmd.Context(), &newRule)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(newRule)
		} else {
			ui.Successf("rule %d: %s %s %q", id, newRule.Name, newRule.Command, newRule.Pattern)
		}
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		rules, err := store.ListRules(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(rules)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOMMAND\tPATTERN\tENABLED\tAI\tHUMAN")
		for _, r := range rules {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\t%v\t%v\n",
				r.ID, r.Name, r.Command, r.Pattern, r.Enabled, r.AIFlag, r.Human)
		}
		return w.Flush()
	},
}

func ruleToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>",
		Short: use + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad rule id %q", args[0])
			}
			store, cleanup, err := openStore(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.SetRuleEnabled(cmd.Context(), id, enabled); err != nil {
				return err
			}
			ui.Successf("rule %d %sd", id, use)
			return nil
		},
	}
}

var newAssignment types.RuleAssignment

var rulesAssignCmd = &cobra.Command{
	Use:   "assign <rule-id>",
	Short: "Bind a rule to a (master type, child type) pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ruleID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad rule id %q", args[0])
		}
		newAssignment.RuleID = ruleID
		newAssignment.Enabled = true
		store, cleanup, err := openStore(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := store.AssignRule(cmd.Context(), &newAssignment)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(newAssignment)
		} else {
			ui.Successf("assignment %d: rule %d, master type %d ← child type %d, priority %d",
				id, ruleID, newAssignment.MasterTypeID, newAssignment.ChildTypeID, newAssignment.Priority)
		}
		return nil
	},
}

var rulesAssignmentsCmd = &cobra.Command{
	Use:   "assignments",
	Short: "List rule assignments",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		assignments, err := store.ListAllAssignments(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(assignments)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRULE\tMASTER TYPE\tCHILD TYPE\tPRIORITY\tENABLED")
		for _, a := range assignments {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%v\n",
				a.ID, a.RuleID, a.MasterTypeID, a.ChildTypeID, a.Priority, a.Enabled)
		}
		return w.Flush()
	},
}

func init() {
	rulesAddCmd.Flags().StringVar((*string)(&newRule.Command), "command", "equals",
		"equals, contains, startswith, endswith, or regex")
	rulesAddCmd.Flags().StringVar(&newRule.Pattern, "pattern", "",
		"match pattern (empty: use the child node's value)")
	rulesAddCmd.Flags().BoolVar(&newRule.AIFlag, "ai", false, "mark as AI-produced (excluded from Gold)")
	rulesAddCmd.Flags().BoolVar(&newRule.Human, "human", false, "mark as human-reviewed")

	rulesAssignCmd.Flags().Int64Var(&newAssignment.MasterTypeID, "master-type", 0, "master node type id")
	rulesAssignCmd.Flags().Int64Var(&newAssignment.ChildTypeID, "child-type", 0, "child node type id")
	rulesAssignCmd.Flags().IntVar(&newAssignment.Priority, "priority", 100, "evaluation priority (lower wins)")
	_ = rulesAssignCmd.MarkFlagRequired("master-type")
	_ = rulesAssignCmd.MarkFlagRequired("child-type")

	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd,
		ruleToggleCmd("enable", true), ruleToggleCmd("disable", false),
		rulesAssignCmd, rulesAssignmentsCmd)
	rootCmd.AddCommand(rulesCmd)
}
