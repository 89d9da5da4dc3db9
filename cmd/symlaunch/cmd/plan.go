package cmd

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the resolved launch plan",
	Long:  `Resolve the plan (built-in default or --plan file) and print it without starting anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := resolvePlan()
		if err != nil {
			return err
		}
		return printPlan(plan)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVar(&planFile, "plan", "", "plan file (default: built-in CVRP-20 pair)")
}
