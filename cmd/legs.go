package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"ciq/pipeline-engine/internal/matrix"
	"ciq/pipeline-engine/internal/parser"
)

var legsJob string

var legsCmd = &cobra.Command{
	Use:   "legs <pipeline.yaml>",
	Short: "Show the matrix legs a pipeline expands to",
	Long: `Expand each job's matrix and print the resulting legs,
without executing anything.`,
	Example: `  pipeline-engine legs ci.yaml
  pipeline-engine legs --job test ci.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runLegs,
}

func init() {
	rootCmd.AddCommand(legsCmd)
	legsCmd.Flags().StringVar(&legsJob, "job", "", "only show legs for this job")
}

func runLegs(cmd *cobra.Command, args []string) error {
	pipeline, err := parser.NewYAMLParser().ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("parsing pipeline: %w", err)
	}

	jobNames := make([]string, 0, len(pipeline.Jobs))
	for name := range pipeline.Jobs {
		if legsJob != "" && name != legsJob {
			continue
		}
		jobNames = append(jobNames, name)
	}
	if legsJob != "" && len(jobNames) == 0 {
		return fmt.Errorf("job %q not found in pipeline %q", legsJob, pipeline.Name)
	}
	sort.Strings(jobNames)

	for _, name := range jobNames {
		job := pipeline.Jobs[name]

		var legs []matrix.Leg
		if job.Strategy != nil {
			legs, err = matrix.Expand(job.Strategy.Matrix)
		} else {
			legs, err = matrix.Expand(nil)
		}
		if err != nil {
			return fmt.Errorf("expanding matrix for job %q: %w", name, err)
		}

		fmt.Printf("%s: %d leg(s)\n", name, len(legs))
		for _, leg := range legs {
			if leg.Name() == "" {
				fmt.Println("  (no matrix)")
				continue
			}
			fmt.Printf("  %s\n", leg.Name())
		}
	}
	return nil
}
