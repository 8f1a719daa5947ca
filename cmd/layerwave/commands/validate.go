package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var (
		catalogFile string
		layersFile  string
		target      string
		policies    []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate catalog and layer documents",
		Long: `Validate a catalog document and, optionally, a layers document.

This command checks:
  - Document syntax (YAML, JSON or CUE)
  - Schema conformance and descriptor fields
  - With --layers: that the computed plan is internally consistent
  - With --layers: that no blocking policy finding is raised`,
		Example: `  # Validate a catalog
  layerwave validate --catalog catalog.yaml

  # Validate a catalog against a fleet with extra policies
  layerwave validate --catalog catalog.cue --layers layers.yaml --policy ./policies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			catalogPath, err := rt.catalogPath(catalogFile)
			if err != nil {
				return err
			}
			cat, err := rt.parser.LoadCatalog(ctx, catalogPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "catalog %s: %d recipe(s), %d bucket(s)\n",
				catalogPath, cat.Recipes.Len(), cat.Buckets.Len())

			if layersFile == "" {
				return nil
			}

			doc, err := rt.parser.LoadLayers(ctx, layersFile)
			if err != nil {
				return err
			}
			layers, docTarget, err := doc.Decode()
			if err != nil {
				return err
			}
			resolved, err := rt.resolveTarget(target, docTarget, cat)
			if err != nil {
				return err
			}

			plan, err := rt.telemetry.ComputePlan(ctx, engine.NewPlanner(), engine.Request{
				Layers:  layers,
				Recipes: cat.Recipes,
				Buckets: cat.Buckets,
				Target:  resolved,
			})
			if err != nil {
				return err
			}
			if err := engine.ValidatePlan(plan, layers); err != nil {
				return err
			}
			fmt.Fprintf(out, "layers %s: %d layer(s), plan of %d wave(s) is consistent\n",
				layersFile, len(layers), len(plan.Waves))

			result, err := evaluatePolicies(ctx, rt, plan, rt.policyPaths(policies), "validate")
			if err != nil {
				return err
			}
			renderFindings(cmd.ErrOrStderr(), result)
			return policy.Enforce(result)
		},
	}

	cmd.Flags().StringVar(&catalogFile, "catalog", "", "catalog document (.yaml, .json or .cue)")
	cmd.Flags().StringVarP(&layersFile, "layers", "l", "", "layers document to plan and check")
	cmd.Flags().StringVarP(&target, "target", "t", "", "target version, overrides the documents")
	cmd.Flags().StringSliceVar(&policies, "policy", nil, "policy file or directory (repeatable)")

	return cmd
}
