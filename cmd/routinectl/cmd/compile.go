package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tracelace/routine/pkg/compiler"
	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/value"
)

var (
	compileTracePath string
	compileOutDir    string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a recorded agent trace into a routine package",
	RunE:  runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringVar(&compileTracePath, "trace", "", "path to a trace JSON document (required)")
	compileCmd.Flags().StringVar(&compileOutDir, "out", "", "output routine package directory (default: ./<slug>)")
	compileCmd.MarkFlagRequired("trace")
}

func runCompile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(compileTracePath)
	if err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}

	var tr routine.Trace
	if err := json.Unmarshal(data, &tr); err != nil {
		return fmt.Errorf("parsing trace: %w", err)
	}

	result, err := compiler.Compile(&tr)
	if err != nil {
		return fmt.Errorf("compiling trace: %w", err)
	}

	outDir := compileOutDir
	if outDir == "" {
		outDir = "./" + compiler.NameSlug(tr.Mission.Goal)
	}
	if err := writePackage(outDir, result); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "compiled %q -> %s (%d steps, %d fixtures)\n", tr.Mission.Goal, outDir, len(result.Routine.Steps), len(result.Fixtures))
	return nil
}

func writePackage(dir string, result *compiler.Result) error {
	if err := os.MkdirAll(filepath.Join(dir, "fixtures"), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	routineData, err := yaml.Marshal(result.Routine)
	if err != nil {
		return fmt.Errorf("marshaling routine: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "routine.yaml"), routineData, 0o644); err != nil {
		return fmt.Errorf("writing routine.yaml: %w", err)
	}

	if result.UDFSource != "" {
		if err := os.WriteFile(filepath.Join(dir, "udf_stubs.go"), []byte(result.UDFSource), 0o644); err != nil {
			return fmt.Errorf("writing udf_stubs.go: %w", err)
		}
	}

	for name, v := range result.Fixtures {
		if err := writeFixture(dir, name, v); err != nil {
			return err
		}
	}
	return nil
}

func writeFixture(dir, name string, v value.Value) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling fixture %s: %w", name, err)
	}
	path := filepath.Join(dir, "fixtures", name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing fixture %s: %w", name, err)
	}
	return nil
}
