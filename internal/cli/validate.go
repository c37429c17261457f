package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/patchguard/internal/decompose"
	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/report"
	"github.com/ppiankov/patchguard/internal/validator"
)

var (
	validateDiff        string
	validateOld         string
	validateNew         string
	validateDescription string
	validateBaseline    float64
	validateScenario    string
	validateIntent      string
	validateTolerance   float64
	validateEducational bool
	validateFormat      string
	validateRender      bool
	validateParallel    int
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateDiff, "diff", "", "Unified diff file to validate (- for stdin)")
	validateCmd.Flags().StringVar(&validateOld, "old", "", "Original file, used with --new to build the diff")
	validateCmd.Flags().StringVar(&validateNew, "new", "", "Changed file, used with --old to build the diff")
	validateCmd.Flags().StringVar(&validateDescription, "description", "", "Patch description for --diff and --old/--new")
	validateCmd.Flags().Float64Var(&validateBaseline, "baseline", 0, "Author-estimated baseline risk in [0,1]")
	validateCmd.Flags().StringVar(&validateScenario, "scenario", "", "Scenario id selecting contextual rules (e.g. xss)")
	validateCmd.Flags().StringVar(&validateIntent, "intent", "", "Free-text intent of the patch author")
	validateCmd.Flags().Float64Var(&validateTolerance, "tolerance", 0, "Risk tolerance in [0,1]; higher scores add a warning")
	validateCmd.Flags().BoolVar(&validateEducational, "educational", false, "Attach teaching material for every finding")
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "text", "Output format (text|json|markdown)")
	validateCmd.Flags().BoolVar(&validateRender, "render", true, "Render markdown output for the terminal")
	validateCmd.Flags().IntVar(&validateParallel, "parallel", 4, "Patch files validated concurrently")
}

var validateCmd = &cobra.Command{
	Use:   "validate [patch-file...]",
	Short: "Validate patches and simulate the accepted ones",
	Long: "Validates patch files (YAML or JSON with diff, description, baseline_risk,\n" +
		"effects, alternatives and an optional context), a raw diff via --diff,\n" +
		"or a pair of files via --old/--new.\n\n" +
		"Exit code 0 if every patch is accepted, 1 if any is rejected.",
	RunE: runValidate,
}

// patchInput is one patch to validate with the context it runs in.
type patchInput struct {
	Name    string
	Plan    model.PatchPlan
	Context model.ValidationContext
}

// patchFile is the on-disk patch format.
type patchFile struct {
	model.PatchPlan `yaml:",inline"`
	Context         *model.ValidationContext `yaml:"context,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	inputs, err := collectInputs(args, flagContext())
	if err != nil {
		return err
	}

	v, logger, err := openValidator()
	if err != nil {
		return err
	}
	defer v.Close()
	defer logger.Sync()

	results, err := validateAll(cmd.Context(), v, inputs, validateParallel)
	if err != nil {
		return err
	}

	if err := writeResults(os.Stdout, results); err != nil {
		return err
	}

	for _, r := range results {
		if !r.Result.Success {
			return errRejected
		}
	}
	return nil
}

func flagContext() model.ValidationContext {
	return model.ValidationContext{
		Scenario:        validateScenario,
		PlayerIntent:    validateIntent,
		RiskTolerance:   validateTolerance,
		EducationalMode: validateEducational,
	}
}

// collectInputs gathers patches from files, --diff and --old/--new. Patch
// files without a context section use vctx.
func collectInputs(files []string, vctx model.ValidationContext) ([]patchInput, error) {
	var inputs []patchInput

	for _, path := range files {
		pf, err := loadPatchFile(path)
		if err != nil {
			return nil, err
		}
		in := patchInput{Name: path, Plan: pf.PatchPlan, Context: vctx}
		if pf.Context != nil {
			in.Context = *pf.Context
		}
		inputs = append(inputs, in)
	}

	if validateDiff != "" {
		data, err := readInput(validateDiff)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, patchInput{
			Name:    validateDiff,
			Plan:    model.PatchPlan{Diff: string(data), Description: validateDescription, BaselineRisk: validateBaseline},
			Context: vctx,
		})
	}

	if validateOld != "" || validateNew != "" {
		if validateOld == "" || validateNew == "" {
			return nil, fmt.Errorf("--old and --new must be used together")
		}
		oldData, err := os.ReadFile(validateOld)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", validateOld, err)
		}
		newData, err := os.ReadFile(validateNew)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", validateNew, err)
		}
		diff := decompose.Unified(filepath.ToSlash(validateOld), filepath.ToSlash(validateNew), string(oldData), string(newData))
		if diff == "" {
			return nil, fmt.Errorf("%s and %s are identical", validateOld, validateNew)
		}
		inputs = append(inputs, patchInput{
			Name:    validateNew,
			Plan:    model.PatchPlan{Diff: diff, Description: validateDescription, BaselineRisk: validateBaseline},
			Context: vctx,
		})
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("nothing to validate: pass patch files, --diff, or --old/--new")
	}
	return inputs, nil
}

// loadPatchFile reads a YAML or JSON patch file.
func loadPatchFile(path string) (*patchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch %s: %w", path, err)
	}
	var pf patchFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse patch %s: %w", path, err)
	}
	if pf.Diff == "" {
		return nil, fmt.Errorf("patch %s has no diff", path)
	}
	return &pf, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// validateAll runs every input through v, at most parallel at a time.
// Results keep input order.
func validateAll(ctx context.Context, v *validator.Validator, inputs []patchInput, parallel int) ([]report.Named, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]report.Named, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = report.Named{Name: in.Name, Result: v.Validate(gctx, in.Plan, in.Context)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeResults(w io.Writer, results []report.Named) error {
	switch validateFormat {
	case "json":
		out, err := report.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	case "markdown", "md":
		out := report.FormatMarkdown(results)
		if validateRender {
			out = renderMarkdown(out)
		}
		fmt.Fprint(w, out)
	case "text", "":
		fmt.Fprint(w, report.FormatText(results))
	default:
		return fmt.Errorf("unknown format %q (want text, json or markdown)", validateFormat)
	}
	return nil
}

// renderMarkdown styles markdown for the terminal. Falls back to the raw
// text when the renderer cannot be built.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
