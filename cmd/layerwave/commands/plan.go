package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/policy"
	"github.com/layerwave/layerwave/pkg/stores"
)

type planOptions struct {
	catalog  string
	layers   string
	target   string
	format   string
	out      string
	policies []string
	enforce  bool
	save     bool
	replace  bool
}

func newPlanCommand() *cobra.Command {
	var opts planOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute upgrade waves for a set of layers",
		Long: `Compute the ordered upgrade waves that move the given layers toward the
target version.

The plan:
  - Caps the run at the bucket containing the lowest layer version
  - Applies recipes in ascending target order, one wave per recipe
  - Collects remaining manual steps into one trailing wave
  - Is checked against built-in and user OPA policies`,
		Example: `  # Plan as JSON
  layerwave plan --catalog catalog.yaml --layers layers.yaml

  # Human readable tables with an explicit target
  layerwave plan --catalog catalog.cue --layers layers.json --target 2.0.0 --format table

  # Fail on blocking policy findings and archive the plan
  layerwave plan --catalog catalog.yaml --layers layers.yaml --policy ./policies --enforce --save --replace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.catalog, "catalog", "", "catalog document (.yaml, .json or .cue)")
	cmd.Flags().StringVarP(&opts.layers, "layers", "l", "", "layers document (.yaml, .json or .cue)")
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "target version, overrides the documents")
	cmd.Flags().StringVarP(&opts.format, "format", "f", FormatJSON, "output format (json, table)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the plan to a file instead of stdout")
	cmd.Flags().StringSliceVar(&opts.policies, "policy", nil, "policy file or directory (repeatable)")
	cmd.Flags().BoolVar(&opts.enforce, "enforce", false, "fail when a policy finding is blocking")
	cmd.Flags().BoolVar(&opts.save, "save", false, "archive the plan as a report")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "with --save, replace archived reports for the same target")
	_ = cmd.MarkFlagRequired("layers")

	return cmd
}

func runPlan(ctx context.Context, stdout, stderr io.Writer, opts planOptions) error {
	if opts.format != FormatJSON && opts.format != FormatTable {
		return engine.NewInputFormatError(fmt.Sprintf("unknown output format %q", opts.format), nil).WithField("format")
	}
	if opts.replace && !opts.save {
		return engine.NewInputFormatError("--replace requires --save", nil).WithField("replace")
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.telemetry.Logger.Component("plan")

	catalogPath, err := rt.catalogPath(opts.catalog)
	if err != nil {
		return err
	}
	cat, err := rt.parser.LoadCatalog(ctx, catalogPath)
	if err != nil {
		return err
	}
	doc, err := rt.parser.LoadLayers(ctx, opts.layers)
	if err != nil {
		return err
	}
	layers, docTarget, err := doc.Decode()
	if err != nil {
		return err
	}
	target, err := rt.resolveTarget(opts.target, docTarget, cat)
	if err != nil {
		return err
	}

	planner := engine.NewPlanner(engine.WithLogger(rt.telemetry.Logger.Component("engine")))
	plan, err := rt.telemetry.ComputePlan(ctx, planner, engine.Request{
		Layers:  layers,
		Recipes: cat.Recipes,
		Buckets: cat.Buckets,
		Target:  target,
	})
	if err != nil {
		return err
	}

	result, err := evaluatePolicies(ctx, rt, plan, rt.policyPaths(opts.policies), "plan")
	if err != nil {
		return err
	}
	renderFindings(stderr, result)
	if opts.enforce {
		if err := policy.Enforce(result); err != nil {
			return err
		}
	}

	if opts.save {
		if err := saveReport(ctx, rt, plan, opts.replace); err != nil {
			return err
		}
	}

	w := stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	logger.Info().
		Str("plan_id", plan.ID).
		Str("target", plan.Target.String()).
		Str("ceiling", plan.Ceiling.String()).
		Int("waves", len(plan.Waves)).
		Int("manual", plan.ManualActionCount()).
		Msg("Plan computed")

	if opts.format == FormatTable {
		return renderPlanTable(w, plan)
	}
	return writeJSON(w, plan.Documents())
}

// evaluatePolicies runs built-in and user policies over a plan.
func evaluatePolicies(ctx context.Context, rt *runtime, plan *engine.Plan, paths []string, operation string) (*policy.Result, error) {
	eng, err := policy.NewEngine(rt.telemetry.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		if err := eng.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}

	result, err := eng.EvaluatePlan(ctx, plan, operation)
	if err != nil {
		return nil, err
	}
	for _, v := range result.Violations {
		rt.telemetry.Metrics.RecordPolicyFinding(v.Policy, string(v.Severity))
	}
	return result, nil
}

func saveReport(ctx context.Context, rt *runtime, plan *engine.Plan, replace bool) error {
	archive, err := openArchive(ctx, rt)
	if err != nil {
		return err
	}
	defer func() { _ = archive.Close() }()

	report := stores.NewReport(plan)
	if err := archive.SaveReport(ctx, report, replace); err != nil {
		return err
	}
	rt.telemetry.Metrics.RecordReportSaved()
	logger := rt.telemetry.Logger.Component("plan")
	logger.Info().
		Str("report_id", report.ID).
		Str("target", report.Target).
		Bool("replace", replace).
		Msg("Plan archived")
	return nil
}
