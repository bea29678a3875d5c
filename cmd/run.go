package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ciq/pipeline-engine/internal/event"
	"ciq/pipeline-engine/internal/parser"
	"ciq/pipeline-engine/internal/reporter"
	"ciq/pipeline-engine/internal/runner"
	"ciq/pipeline-engine/internal/scheduler"
	"ciq/pipeline-engine/internal/secrets"
	"ciq/pipeline-engine/pkg/types"
)

var (
	runEventKind   string
	runRef         string
	runChanged     []string
	runInputs      []string
	runSecretsFile string
	runJSONOutput  string
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml>",
	Short: "Execute a pipeline locally",
	Long: `Execute a pipeline on this machine against a synthetic event.
Trigger filters are still evaluated: a push to an unmatched branch or
a change set fully covered by paths_ignore produces no run.`,
	Example: `  # Simulate a push to main
  pipeline-engine run ci.yaml

  # Simulate a README-only pull request
  pipeline-engine run --event pull_request --changed README.md ci.yaml

  # Manual dispatch with inputs
  pipeline-engine run --event dispatch --input level=debug ci.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runEventKind, "event", "push", "event kind to simulate (push, pull_request, schedule, dispatch)")
	runCmd.Flags().StringVar(&runRef, "ref", event.DefaultBranchRef, "git ref the event targets")
	runCmd.Flags().StringArrayVar(&runChanged, "changed", nil, "changed file path (repeatable)")
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "dispatch input as name=value (repeatable)")
	runCmd.Flags().StringVar(&runSecretsFile, "secrets-file", "", "YAML file of secret name: value pairs")
	runCmd.Flags().StringVar(&runJSONOutput, "out-json", "", "write the full run as JSON to a file")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	pipeline, err := parser.NewYAMLParser().ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("parsing pipeline: %w", err)
	}

	evt, err := buildEvent()
	if err != nil {
		return err
	}

	store := secrets.NewStore()
	if runSecretsFile != "" {
		if err := store.LoadFile(runSecretsFile); err != nil {
			return err
		}
	}
	store.LoadEnv("CIQ_SECRET_")

	sched := scheduler.New(scheduler.Config{}, runner.New(nil), store)
	sched.RegisterPipeline(pipeline)

	manager, err := reporter.NewManager(cmd.Context(), nil, pipeline.Reporters)
	if err != nil {
		return fmt.Errorf("configuring reporters: %w", err)
	}
	defer manager.Close(context.Background())
	sched.SetNotifier(manager)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\naborting run...")
		cancel()
	}()

	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Printf("  %s (%s on %s)\n\n", pipeline.Name, evt.Kind, evt.Branch())
	}

	var run *types.PipelineRun
	if evt.Kind == types.EventDispatch {
		run, err = sched.Dispatch(ctx, pipeline.Name, evt)
		if err != nil {
			return err
		}
	} else {
		started := sched.HandleEvent(ctx, evt)
		if len(started) == 0 {
			fmt.Printf("event did not fire pipeline %q\n", pipeline.Name)
			return nil
		}
		run = started[0]
	}

	if err := sched.Stop(context.Background()); err != nil {
		return err
	}
	// Start returned a point-in-time snapshot; fetch the finished run.
	if finished, ok := sched.Get(run.ID); ok {
		run = finished
	}

	// Cancellation by signal leaves the run cancelled; reflect it in
	// the exit code like a failure.
	if runJSONOutput != "" {
		if err := writeRunJSON(runJSONOutput, run); err != nil {
			return fmt.Errorf("writing JSON output: %w", err)
		}
	}

	if run.Status != types.StatusSucceeded {
		return fmt.Errorf("run %s", run.Status)
	}
	return nil
}

// buildEvent assembles the synthetic event from the run flags.
func buildEvent() (*types.Event, error) {
	switch types.EventKind(runEventKind) {
	case types.EventPush:
		evt := &types.Event{Kind: types.EventPush, Ref: runRef, ChangedPaths: runChanged}
		return evt, nil

	case types.EventPullRequest:
		return &types.Event{
			Kind:         types.EventPullRequest,
			Ref:          runRef,
			Action:       "opened",
			ChangedPaths: runChanged,
		}, nil

	case types.EventSchedule:
		return event.NewScheduleEvent(time.Now()), nil

	case types.EventDispatch:
		inputs := make(map[string]string, len(runInputs))
		for _, pair := range runInputs {
			name, value, err := splitInput(pair)
			if err != nil {
				return nil, err
			}
			inputs[name] = value
		}
		return event.NewDispatchEvent(runRef, inputs), nil

	default:
		return nil, fmt.Errorf("unknown event kind: %s", runEventKind)
	}
}

func splitInput(pair string) (string, string, error) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '=' {
			return pair[:i], pair[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("input %q must be name=value", pair)
}

func writeRunJSON(path string, run *types.PipelineRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
