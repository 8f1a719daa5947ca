package telemetry_test

import (
	"context"
	"fmt"

	"github.com/layerwave/layerwave/pkg/catalog"
	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/telemetry"
	"github.com/layerwave/layerwave/pkg/version"
)

// Example_computePlan demonstrates an instrumented planning run.
func Example_computePlan() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	v := version.MustParse
	current := v("1.0.0")

	plan, err := tel.ComputePlan(context.Background(), engine.NewPlanner(), engine.Request{
		Layers: []engine.Layer{{Name: "prod-base", Version: &current}},
		Recipes: catalog.NewRecipeCatalog([]catalog.Recipe{
			catalog.Automated("upgrade-1.1", []version.Version{v("1.0.0")}, v("1.1.0"), catalog.LayerSelector{}),
		}),
		Buckets: catalog.NewBucketCatalog(nil),
		Target:  v("1.1.0"),
	})
	if err != nil {
		panic(err)
	}

	fmt.Println(len(plan.Waves), plan.Ceiling)
	// Output: 1 1.1.0
}

// Example_operation demonstrates wrapping arbitrary work in a span.
func Example_operation() {
	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
	if err != nil {
		panic(err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	ctx := tel.WithContext(context.Background())

	op := telemetry.StartOperation(ctx, "catalog.load", telemetry.AttrLayer.String("prod-base"))
	var loadErr error
	// ... load the catalog with op.Ctx ...
	op.End(loadErr)
}
