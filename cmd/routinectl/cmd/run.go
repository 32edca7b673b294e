package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tracelace/routine/pkg/engine"
	"github.com/tracelace/routine/pkg/loader"
	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/runstate/filestore"
	"github.com/tracelace/routine/pkg/toolregistry"
	"github.com/tracelace/routine/pkg/value"
)

var (
	runInputPath string
	runStateDir  string
	runMockTools bool
)

var runCmd = &cobra.Command{
	Use:   "run <routine-dir>",
	Short: "Run a routine package, answering any prompt.user pauses interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runInputPath, "input", "", "path to an input JSON document (default: <routine-dir>/input.json)")
	runCmd.Flags().StringVar(&runStateDir, "state-dir", "", "directory for pause snapshots (default: a temp directory)")
	runCmd.Flags().BoolVar(&runMockTools, "mock-tools", false, "register every declared tool as an echo stub, for smoke-testing a compiled routine before real tool implementations exist")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := args[0]

	input, err := loadRunInput(dir)
	if err != nil {
		return err
	}

	stateDir := runStateDir
	if stateDir == "" {
		stateDir, err = os.MkdirTemp("", "routinectl-state-*")
		if err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	} else if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	store, err := filestore.New(filestore.Options{Dir: stateDir})
	if err != nil {
		return fmt.Errorf("initializing state store: %w", err)
	}

	reg := toolregistry.New()
	if runMockTools {
		if err := registerMockTools(dir, reg); err != nil {
			return err
		}
	}

	e := engine.New(engine.Options{})
	result := e.Run(ctx, dir, engine.RunOptions{
		Input:        input,
		ToolRegistry: reg,
		StateStore:   store,
	})

	for result.Status == routine.StatusNeedsInput {
		answers, err := promptForAnswers(dir, result.PendingPrompt)
		if err != nil {
			return err
		}
		result = e.Resume(ctx, result.RunID, store, engine.ResumeOptions{
			Answers:      answers,
			ToolRegistry: reg,
		})
	}

	return printRunResult(cmd, result)
}

func loadRunInput(dir string) (map[string]value.Value, error) {
	if runInputPath != "" {
		data, err := os.ReadFile(runInputPath)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		var m map[string]value.Value
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parsing input: %w", err)
		}
		return m, nil
	}
	return loader.LoadInput(dir)
}

// registerMockTools loads the routine's tool declarations and registers a
// stub for each one that simply echoes its rendered arguments back as the
// result, the smoke-test posture the mocking domain of getmockd-mockd is
// built around: exercise a routine's full control flow before any real
// tool implementation exists.
func registerMockTools(dir string, reg *toolregistry.Registry) error {
	pkg, err := loader.Load(dir, nil)
	if err != nil {
		return fmt.Errorf("loading routine: %w", err)
	}
	for _, t := range pkg.Routine.Tools {
		reg.Register(t.Name, func(_ context.Context, args map[string]value.Value) (value.Value, error) {
			return args, nil
		}, nil, nil)
	}
	return nil
}

// promptForAnswers reloads the routine to find the paused step's prompt
// fields and renders an interactive huh form, mapping each field type to
// its huh equivalent 1:1.
func promptForAnswers(dir, stepID string) (map[string]value.Value, error) {
	pkg, err := loader.Load(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("loading routine: %w", err)
	}
	step, _ := pkg.Routine.StepByID(stepID)
	if step == nil || step.Prompt == nil {
		return nil, fmt.Errorf("pending step %q has no prompt", stepID)
	}

	answers := make(map[string]value.Value, len(step.Prompt.Fields))
	strs := make(map[string]*string, len(step.Prompt.Fields))
	bools := make(map[string]*bool, len(step.Prompt.Fields))

	var fields []huh.Field
	for _, f := range step.Prompt.Fields {
		f := f
		switch f.Type {
		case routine.PromptFieldConfirm:
			b := new(bool)
			fields = append(fields, huh.NewConfirm().Title(f.Label).Value(b).Key(f.Name))
			bools[f.Name] = b
		case routine.PromptFieldSelect:
			s := new(string)
			opts := make([]huh.Option[string], len(f.Options))
			for i, o := range f.Options {
				opts[i] = huh.NewOption(o, o)
			}
			fields = append(fields, huh.NewSelect[string]().Title(f.Label).Options(opts...).Value(s).Key(f.Name))
			strs[f.Name] = s
		default: // text, number — huh.Input, converted to number below if needed
			s := new(string)
			fields = append(fields, huh.NewInput().Title(f.Label).Value(s).Key(f.Name))
			strs[f.Name] = s
		}
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("collecting answers: %w", err)
	}

	for _, f := range step.Prompt.Fields {
		switch f.Type {
		case routine.PromptFieldConfirm:
			answers[f.Name] = *bools[f.Name]
		case routine.PromptFieldNumber:
			var n float64
			if _, err := fmt.Sscanf(*strs[f.Name], "%g", &n); err != nil {
				return nil, fmt.Errorf("field %q: %q is not a number", f.Name, *strs[f.Name])
			}
			answers[f.Name] = n
		default:
			answers[f.Name] = *strs[f.Name]
		}
	}
	return answers, nil
}

func printRunResult(cmd *cobra.Command, result *routine.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	if result.Status == routine.StatusFailed {
		return fmt.Errorf("run %s failed: %s", result.RunID, result.Failure.Message)
	}
	return nil
}
