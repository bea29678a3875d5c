package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ciq/pipeline-engine/internal/parser"
)

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline.yaml>...",
	Short: "Validate pipeline definition files",
	Long: `Parse and validate one or more pipeline definition files,
reporting syntax and semantic errors with their locations.`,
	Example: `  pipeline-engine validate ci.yaml
  pipeline-engine validate pipelines/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p := parser.NewYAMLParser()

	failed := 0
	for _, path := range args {
		pipeline, err := p.ParseFile(path)
		if err != nil {
			failed++
			fmt.Printf("✗ %s\n", path)
			printParseError(err)
			continue
		}
		if !quiet {
			fmt.Printf("✓ %s (%s, %d jobs)\n", path, pipeline.Name, len(pipeline.Jobs))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed validation", failed, len(args))
	}
	return nil
}

func printParseError(err error) {
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) && parseErr.Line > 0 {
		fmt.Printf("    line %d, column %d: %s\n", parseErr.Line, parseErr.Column, parseErr.Message)
		return
	}
	var valErr *parser.ValidationError
	if errors.As(err, &valErr) {
		fmt.Printf("    %s: %s\n", valErr.Field, valErr.Message)
		return
	}
	fmt.Printf("    %v\n", err)
}
