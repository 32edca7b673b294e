// Package loader implements the Routine Package Loader (spec §4.5):
// reading the fixed directory layout of spec §6 into a (routine document,
// user-function module handle, input schema, output schema) tuple.
//
// spec §6's layout names `udf.py` as the (language-specific) user-function
// source file. Go has no runtime source-loading primitive to match it;
// per spec §9's Design Note option (a), this repo requires user functions
// to register explicitly. The directory-based "dynamic" path spec.md
// implies is approximated with Go's plugin package: an optional
// `udf.so`, built separately with `go build -buildmode=plugin`, exporting
// a `Functions map[string]udf.Func` symbol. Most callers instead pass
// their registration table directly to Load, which is both simpler and
// portable across platforms plugin does not support.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"gopkg.in/yaml.v3"

	"github.com/tracelace/routine/pkg/eval"
	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/schema"
	"github.com/tracelace/routine/pkg/udf"
	"github.com/tracelace/routine/pkg/value"
)

const (
	routineFile        = "routine.yaml"
	udfPluginFile      = "udf.so"
	schemasDir         = "schemas"
	inputSchemaFile    = "input.schema.json"
	outputSchemaFile   = "output.schema.json"
	fixturesDir        = "fixtures"
	inputFile          = "input.json"
	expectedOutputFile = "expected_output.json"
)

// Package is the loaded result of a routine directory.
type Package struct {
	Dir          string
	Routine      *routine.Routine
	UDF          udf.Module
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
}

// Load reads dir into a Package. mod, if non-nil, is used as the
// package's user-function module verbatim (the explicit-registration
// path spec §9 recommends); if nil, Load attempts to open an optional
// udf.so plugin in dir, falling back to an empty module if neither is
// present — legal per spec §4.5 ("The user-function file is optional;
// absence is legal but any subsequent udf.call requiring it errors").
func Load(dir string, mod udf.Module) (*Package, error) {
	r, err := loadRoutine(dir)
	if err != nil {
		return nil, err
	}

	if mod == nil {
		mod, err = loadUDFPlugin(dir)
		if err != nil {
			return nil, err
		}
	}

	inputSchema, outputSchema, err := loadSchemas(dir, r)
	if err != nil {
		return nil, err
	}

	return &Package{
		Dir:          dir,
		Routine:      r,
		UDF:          mod,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
	}, nil
}

func loadRoutine(dir string) (*routine.Routine, error) {
	path := filepath.Join(dir, routineFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", routine.ErrRoutineLoad, path, err)
	}
	var r routine.Routine
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", routine.ErrRoutineLoad, path, err)
	}
	r.Normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func loadUDFPlugin(dir string) (udf.Module, error) {
	path := filepath.Join(dir, udfPluginFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return udf.MapModule{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", routine.ErrRoutineLoad, path, err)
	}
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening udf plugin %s: %w", routine.ErrRoutineLoad, path, err)
	}
	sym, err := p.Lookup("Functions")
	if err != nil {
		return nil, fmt.Errorf("%w: udf plugin %s has no Functions symbol: %w", routine.ErrRoutineLoad, path, err)
	}
	fns, ok := sym.(*map[string]udf.Func)
	if !ok {
		return nil, fmt.Errorf("%w: udf plugin %s: Functions has unexpected type %T", routine.ErrRoutineLoad, path, sym)
	}
	return udf.MapModule(*fns), nil
}

// loadSchemas resolves input/output schemas with the schemas/*.schema.json
// files taking precedence over the routine document's inline
// input_schema/output_schema (the shape compiler.Compile populates, per
// spec §4.7); a routine compiled straight from a trace has no schemas/
// directory at all, so falling through to the inline schema is what makes
// a compiled-then-run routine actually validate input/output rather than
// silently skipping it.
func loadSchemas(dir string, r *routine.Routine) (input, output *schema.Schema, err error) {
	input, err = loadSchemaFile(filepath.Join(dir, schemasDir, inputSchemaFile))
	if err != nil {
		return nil, nil, err
	}
	output, err = loadSchemaFile(filepath.Join(dir, schemasDir, outputSchemaFile))
	if err != nil {
		return nil, nil, err
	}

	inlineInput, inlineOutput, err := r.CompileSchemas()
	if err != nil {
		return nil, nil, err
	}
	if input == nil {
		input = inlineInput
	}
	if output == nil {
		output = inlineOutput
	}
	return input, output, nil
}

func loadSchemaFile(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", routine.ErrRoutineLoad, path, err)
	}
	s, err := schema.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", routine.ErrRoutineLoad, path, err)
	}
	return s, nil
}

// LoadFixture reads fixtures/<name>.json from dir, decoded into a Value
// tree. Fixtures are written by the compiler (spec §4.7 step 2); this is
// the natural read-back side SPEC_FULL C.5 adds for regression tests of
// compiled routines. Numbers decode to float64, exactly as the `--input`
// flag's plain json.Unmarshal does, so every JSON value-decoding path in
// this repo agrees: value.Kind, value.Canonical, and eval.Truthy all
// special-case float64 rather than json.Number.
func LoadFixture(dir, name string) (value.Value, error) {
	path := filepath.Join(dir, fixturesDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: fixture %s: %w", path, err)
	}
	var v value.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("loader: fixture %s: %w", path, err)
	}
	return v, nil
}

// LoadInput reads the optional input.json default-input file, or returns
// an empty map if absent.
func LoadInput(dir string) (map[string]value.Value, error) {
	return loadValueMapFile(filepath.Join(dir, inputFile))
}

// LoadExpectedOutput reads the optional expected_output.json golden file.
// It returns (nil, nil) if absent.
func LoadExpectedOutput(dir string) (value.Value, error) {
	path := filepath.Join(dir, expectedOutputFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	var v value.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	return v, nil
}

func loadValueMapFile(path string) (map[string]value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]value.Value{}, nil
		}
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	var m map[string]value.Value
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	return m, nil
}

// Validate performs the static checks SPEC_FULL C.4 adds as a first-class
// operation, ahead of any run: the routine parses and satisfies its own
// structural invariants (via loadRoutine), every tool.call references a
// declared tool, every when/check expression at least parses, and any
// schema documents present parse as JSON Schema. It returns every issue
// found rather than stopping at the first.
func Validate(dir string) []error {
	r, err := loadRoutine(dir)
	if err != nil {
		return []error{err}
	}

	var errs []error
	names := r.ToolNames()
	for i := range r.Steps {
		s := &r.Steps[i]
		if s.Kind == routine.StepToolCall && !names[s.Tool] {
			errs = append(errs, fmt.Errorf("%w: step %s: tool %q is not declared", routine.ErrUnknownTool, s.ID, s.Tool))
		}
		if s.When != "" {
			if err := eval.Check(s.When); err != nil {
				errs = append(errs, fmt.Errorf("step %s: when: %w", s.ID, err))
			}
		}
		if s.Kind == routine.StepAssert {
			if err := eval.Check(s.Check); err != nil {
				errs = append(errs, fmt.Errorf("step %s: check: %w", s.ID, err))
			}
		}
	}

	if _, _, err := loadSchemas(dir, r); err != nil {
		errs = append(errs, err)
	}

	return errs
}
