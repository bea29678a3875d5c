// Package parser turns YAML pipeline definitions into validated
// types.Pipeline values.
package parser

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"ciq/pipeline-engine/pkg/types"
)

// YAMLParser parses YAML pipeline definitions.
type YAMLParser struct {
	cronParser cron.Parser
}

// NewYAMLParser creates a new YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Parse parses a pipeline definition from bytes.
func (p *YAMLParser) Parse(data []byte) (*types.Pipeline, error) {
	var pipeline types.Pipeline

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode: error on unknown fields

	if err := decoder.Decode(&pipeline); err != nil {
		return nil, p.wrapYAMLError(err)
	}

	if err := p.validate(&pipeline); err != nil {
		return nil, err
	}

	return &pipeline, nil
}

// ParseFile parses a pipeline definition from a file.
func (p *YAMLParser) ParseFile(path string) (*types.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewParseError(0, 0, fmt.Sprintf("failed to read file: %s", path), err)
	}
	return p.Parse(data)
}

// wrapYAMLError converts a YAML error to a ParseError with line information.
func (p *YAMLParser) wrapYAMLError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	line, column := extractLineColumn(errStr)
	return NewParseError(line, column, cleanYAMLErrorMessage(errStr), err)
}

// extractLineColumn attempts to extract line and column from a YAML error message.
func extractLineColumn(errStr string) (int, int) {
	var line, column int

	if idx := strings.Index(errStr, "line "); idx != -1 {
		fmt.Sscanf(errStr[idx:], "line %d", &line)
	}
	if idx := strings.Index(errStr, "column "); idx != -1 {
		fmt.Sscanf(errStr[idx:], "column %d", &column)
	}

	return line, column
}

// cleanYAMLErrorMessage creates a cleaner error message.
func cleanYAMLErrorMessage(errStr string) string {
	errStr = strings.TrimPrefix(errStr, "yaml: ")
	if len(errStr) > 0 {
		errStr = strings.ToUpper(errStr[:1]) + errStr[1:]
	}
	return errStr
}

// validate validates a parsed pipeline.
func (p *YAMLParser) validate(pipeline *types.Pipeline) error {
	if pipeline.Name == "" {
		return NewValidationError("name", "pipeline name is required")
	}

	if pipeline.On.Empty() {
		return NewValidationError("on", "pipeline must declare at least one trigger")
	}

	for i, sched := range pipeline.On.Schedule {
		if _, err := p.cronParser.Parse(sched.Cron); err != nil {
			return NewValidationError(
				fmt.Sprintf("on.schedule[%d].cron", i),
				fmt.Sprintf("invalid cron expression %q: %v", sched.Cron, err),
			)
		}
	}

	if pipeline.Concurrency != nil && pipeline.Concurrency.Group == "" {
		return NewValidationError("concurrency.group", "concurrency group is required")
	}

	if !validShell(pipeline.Defaults.Shell) {
		return NewValidationError("defaults.shell", shellError(pipeline.Defaults.Shell))
	}

	if len(pipeline.Jobs) == 0 {
		return NewValidationError("jobs", "pipeline must have at least one job")
	}

	// Deterministic validation order for stable error messages.
	names := make([]string, 0, len(pipeline.Jobs))
	for name := range pipeline.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := p.validateJob(name, pipeline.Jobs[name]); err != nil {
			return err
		}
	}

	return nil
}

// validateJob validates a single job.
func (p *YAMLParser) validateJob(name string, job *types.Job) error {
	path := "jobs." + name

	if job == nil {
		return NewValidationError(path, "job definition is empty")
	}

	if job.TimeoutMinutes < 0 {
		return NewValidationError(path+".timeout_minutes", "timeout must not be negative")
	}

	if job.Strategy != nil {
		if err := p.validateStrategy(path+".strategy", job.Strategy); err != nil {
			return err
		}
	}

	if len(job.Steps) == 0 {
		return NewValidationError(path+".steps", "job must have at least one step")
	}

	stepIDs := make(map[string]bool)
	for i := range job.Steps {
		if err := p.validateStep(&job.Steps[i], stepIDs, fmt.Sprintf("%s.steps[%d]", path, i)); err != nil {
			return err
		}
	}

	return nil
}

// validateStrategy validates a job's matrix strategy.
func (p *YAMLParser) validateStrategy(path string, strategy *types.Strategy) error {
	if strategy.MaxParallel < 0 {
		return NewValidationError(path+".max_parallel", "max_parallel must not be negative")
	}

	if strategy.Matrix == nil {
		return nil
	}

	if len(strategy.Matrix.Axes) == 0 && len(strategy.Matrix.Include) == 0 {
		return NewValidationError(path+".matrix", "matrix must declare at least one axis or include entry")
	}

	for _, axis := range strategy.Matrix.AxisOrder {
		values := strategy.Matrix.Axes[axis]
		if len(values) == 0 {
			return NewValidationError(
				fmt.Sprintf("%s.matrix.%s", path, axis),
				"matrix axis must have at least one value",
			)
		}
		for i, v := range values {
			if !isScalar(v) {
				return NewValidationError(
					fmt.Sprintf("%s.matrix.%s[%d]", path, axis, i),
					fmt.Sprintf("matrix axis values must be scalar, got %T", v),
				)
			}
		}
	}

	return nil
}

// validateStep validates a single step.
func (p *YAMLParser) validateStep(step *types.Step, stepIDs map[string]bool, path string) error {
	if step.ID != "" {
		if stepIDs[step.ID] {
			return NewValidationError(path+".id", fmt.Sprintf("duplicate step ID: %s", step.ID))
		}
		stepIDs[step.ID] = true
	}

	hasRun := step.Run != ""
	hasScript := step.Script != ""

	if !hasRun && !hasScript {
		return NewValidationError(path, "step must declare either 'run' or 'script'")
	}
	if hasRun && hasScript {
		return NewValidationError(path, "step cannot declare both 'run' and 'script'")
	}

	if step.TimeoutMinutes < 0 {
		return NewValidationError(path+".timeout_minutes", "timeout must not be negative")
	}

	if !validShell(step.Shell) {
		return NewValidationError(path+".shell", shellError(step.Shell))
	}

	return nil
}

// validShells are the interpreters run steps may name. A shell given
// as a path is checked by its base name.
var validShells = map[string]bool{
	"sh":   true,
	"bash": true,
	"dash": true,
	"zsh":  true,
	"ksh":  true,
	"fish": true,
	"pwsh": true,
	"cmd":  true,
}

func validShell(shell string) bool {
	if shell == "" {
		return true
	}
	return validShells[filepath.Base(shell)]
}

func shellError(shell string) string {
	names := make([]string, 0, len(validShells))
	for name := range validShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("unsupported shell %q, must be one of: %s", shell, strings.Join(names, ", "))
}

// isScalar reports whether a decoded YAML value is a scalar.
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, uint64, float64, nil:
		return true
	}
	return false
}
