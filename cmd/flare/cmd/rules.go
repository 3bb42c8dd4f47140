package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oncallops/flare/internal/rules"
)

func rulesCmd() *cobra.Command {
	rulesRoot := &cobra.Command{
		Use:   "rules",
		Short: "Manage alert rules",
		Long: "Manage the alert rules the engine evaluates: list and inspect\n" +
			"registered rules, delete them, or validate rule files before deploy.",
	}

	rulesRoot.AddCommand(
		rulesListCmd(),
		rulesGetCmd(),
		rulesDeleteCmd(),
		rulesValidateCmd(),
	)

	return rulesRoot
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all rules",
		Example: `  flare rules list
  flare rules list --output json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			ruleList, err := c.ListRules(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(ruleList)
			}
			if len(ruleList) == 0 {
				fmt.Println("No rules registered.")
				return nil
			}
			return printRuleTable(ruleList)
		},
	}
}

func rulesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Short:   "Show rule details",
		Example: `  flare rules get cpu-high`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			r, err := c.GetRule(context.Background(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(r)
			}
			return printRuleDetail(r)
		},
	}
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Short:   "Delete a rule",
		Example: `  flare rules delete cpu-high`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			if err := c.DeleteRule(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Rule %s deleted.\n", args[0])
			return nil
		},
	}
}

func rulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate rule files without loading them",
		Long: "Parses and validates a rule YAML file, or every rule file in a\n" +
			"directory, and reports the first problem found. Exits non-zero on\n" +
			"invalid rules, so it fits in CI.",
		Example: `  flare rules validate rules/
  flare rules validate rules/cpu.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := args[0]

			info, err := os.Stat(path)
			if err != nil {
				return err
			}

			var loaded int
			if info.IsDir() {
				ruleList, err := rules.LoadDir(path)
				if err != nil {
					return err
				}
				loaded = len(ruleList)
			} else {
				ruleList, err := rules.LoadFile(path)
				if err != nil {
					return err
				}
				loaded = len(ruleList)
			}

			fmt.Printf("OK: %d rule(s) valid.\n", loaded)
			return nil
		},
	}
}
