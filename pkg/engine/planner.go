package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layerwave/layerwave/pkg/catalog"
	"github.com/layerwave/layerwave/pkg/version"
)

// DefaultSuffixSeparator splits a layer name from the suffix that recipe
// manual changes refer to: "prod-base" has suffix "base".
const DefaultSuffixSeparator = "-"

// Planner computes upgrade waves. It holds no per-run state and is safe for
// concurrent use.
type Planner struct {
	logger          zerolog.Logger
	suffixSeparator string
	now             func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger used for skipped recipes and unreachable layers.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger.With().Str("component", "planner").Logger()
	}
}

// WithSuffixSeparator changes how a layer's suffix is derived from its name.
func WithSuffixSeparator(sep string) Option {
	return func(p *Planner) {
		p.suffixSeparator = sep
	}
}

// WithClock sets the clock used to stamp Plan.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// NewPlanner creates a planner.
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{
		logger:          zerolog.Nop(),
		suffixSeparator: DefaultSuffixSeparator,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan turns layers, recipes, buckets and a target into an ordered wave list.
//
// The ceiling is resolved once from the bucket containing the lowest layer
// version (falling back to the target) and stays fixed for the whole run.
// Recipes are visited once in ascending target order; every layer the recipe
// applies to joins that recipe's wave and advances to its target. Layers still
// below the ceiling afterwards are offered Manual recipes in one consolidated
// trailing wave. Only a bucket ceiling bounds that wave.
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("planning aborted: %w", err)
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		Target:    req.Target,
		Ceiling:   req.Target,
		Waves:     []Wave{},
		CreatedAt: p.now(),
	}

	current := make(map[string]version.Version, len(req.Layers))
	order := make([]string, 0, len(req.Layers))
	for _, l := range req.Layers {
		if l.Version == nil {
			plan.Skipped = append(plan.Skipped, l.Name)
			continue
		}
		if _, dup := current[l.Name]; dup {
			return nil, NewInputFormatError("duplicate layer name", nil).WithLayer(l.Name)
		}
		current[l.Name] = *l.Version
		order = append(order, l.Name)
	}

	if len(order) == 0 {
		return plan, nil
	}

	minVersion := current[order[0]]
	for _, name := range order[1:] {
		if v := current[name]; v.LT(minVersion) {
			minVersion = v
		}
	}

	if b, ok := req.Buckets.FindContaining(minVersion); ok {
		plan.Ceiling = b.To
		plan.Bucket = b.ID
	}
	ceiling := plan.Ceiling

	p.logger.Debug().
		Str("plan_id", plan.ID).
		Str("min_version", minVersion.String()).
		Str("ceiling", ceiling.String()).
		Str("bucket", plan.Bucket).
		Int("layers", len(order)).
		Int("recipes", req.Recipes.Len()).
		Msg("Planning upgrade waves")

	recipes := req.Recipes.Sorted()
	acted := make(map[string]bool, len(order))
	waveNumber := 1

	for _, r := range recipes {
		if r.To().GT(ceiling) {
			p.logger.Debug().
				Str("recipe", recipeLabel(r)).
				Str("to", r.To().String()).
				Msg("Recipe beyond ceiling, skipping")
			continue
		}

		var actions []LayerUpgradeAction
		for _, name := range order {
			cur := current[name]
			if !r.AppliesFrom(cur) || !cur.LT(r.To()) {
				continue
			}

			suffix := LayerSuffix(name, p.suffixSeparator)
			action := LayerUpgradeAction{
				Layer:          name,
				Current:        cur,
				Next:           r.To(),
				RecipeID:       r.ID(),
				RequiresManual: r.GatesLayer(suffix),
			}
			if action.RequiresManual {
				action.GuideID = MigrationGuideID(cur, r.To())
			} else if waveNumber == 1 {
				action.Precheck = ResolvePrecheck(name, suffix, cur, recipes)
			}
			actions = append(actions, action)
		}

		if len(actions) == 0 {
			continue
		}

		plan.Waves = append(plan.Waves, Wave{
			Number:      waveNumber,
			Description: describeWave(r, len(actions)),
			From:        lowestCurrent(actions),
			To:          r.To(),
			Manual:      r.IsManual(),
			Actions:     actions,
		})
		for _, a := range actions {
			current[a.Layer] = a.Next
			acted[a.Layer] = true
		}
		waveNumber++
	}

	if sweep, ok := manualSweep(order, current, ceiling, plan.Bucket != "", recipes); ok {
		sweep.Number = waveNumber
		plan.Waves = append(plan.Waves, sweep)
		for _, a := range sweep.Actions {
			current[a.Layer] = a.Next
			acted[a.Layer] = true
		}
	}

	for _, name := range order {
		if !acted[name] && current[name].LT(ceiling) {
			plan.Unreachable = append(plan.Unreachable, name)
			p.logger.Warn().
				Str("layer", name).
				Str("version", current[name].String()).
				Str("ceiling", ceiling.String()).
				Msg("No recipe applies to layer, omitting it from the plan")
		}
	}

	p.logger.Debug().
		Str("plan_id", plan.ID).
		Int("waves", len(plan.Waves)).
		Int("unreachable", len(plan.Unreachable)).
		Msg("Planning completed")

	return plan, nil
}

// manualSweep collects, for every layer still below the ceiling, the first
// Manual recipe that moves it forward. All such actions form one consolidated
// wave. When a bucket supplied the ceiling the sweep never crosses it; with
// the target as ceiling a manual step may carry a layer beyond the target.
func manualSweep(order []string, current map[string]version.Version, ceiling version.Version, bounded bool, recipes []catalog.Recipe) (Wave, bool) {
	var actions []LayerUpgradeAction
	for _, name := range order {
		cur := current[name]
		if !cur.LT(ceiling) {
			continue
		}
		for _, r := range recipes {
			if !r.IsManual() || !r.AppliesFrom(cur) || !r.To().GT(cur) {
				continue
			}
			if bounded && r.To().GT(ceiling) {
				continue
			}
			actions = append(actions, LayerUpgradeAction{
				Layer:          name,
				Current:        cur,
				Next:           r.To(),
				RequiresManual: true,
				GuideID:        MigrationGuideID(cur, r.To()),
			})
			break
		}
	}

	if len(actions) == 0 {
		return Wave{}, false
	}

	highest := actions[0].Next
	for _, a := range actions[1:] {
		if a.Next.GT(highest) {
			highest = a.Next
		}
	}

	return Wave{
		Description: fmt.Sprintf("Consolidated manual upgrades for %d layer(s) up to %s (manual only)", len(actions), highest),
		From:        lowestCurrent(actions),
		To:          highest,
		Manual:      true,
		Actions:     actions,
	}, true
}

// MigrationGuideID names the guide covering the move between two minor lines,
// e.g. "1.0.x-1.1.x-migration-guide".
func MigrationGuideID(from, to version.Version) string {
	return fmt.Sprintf("%s-%s-migration-guide", from.ShortForm(), to.ShortForm())
}

// LayerSuffix returns the part of name after the last sep, or name itself when
// sep does not occur in it.
func LayerSuffix(name, sep string) string {
	if sep == "" {
		return name
	}
	if i := strings.LastIndex(name, sep); i >= 0 {
		return name[i+len(sep):]
	}
	return name
}

func describeWave(r catalog.Recipe, n int) string {
	if r.IsManual() {
		return fmt.Sprintf("Upgrade %d layer(s) to %s (manual only)", n, r.To())
	}
	return fmt.Sprintf("Upgrade %d layer(s) to %s with recipe %s", n, r.To(), r.ID())
}

func recipeLabel(r catalog.Recipe) string {
	if r.IsManual() {
		return "manual->" + r.To().String()
	}
	return r.ID()
}

func lowestCurrent(actions []LayerUpgradeAction) version.Version {
	lo := actions[0].Current
	for _, a := range actions[1:] {
		if a.Current.LT(lo) {
			lo = a.Current
		}
	}
	return lo
}
