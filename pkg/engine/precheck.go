package engine

import (
	"fmt"

	"github.com/layerwave/layerwave/pkg/catalog"
	"github.com/layerwave/layerwave/pkg/version"
)

// ResolvePrecheck looks for a manual gate on the current minor line of a
// layer. Among the recipes targeting the same major.minor as current, the
// first one in ascending target order whose manual gate applies to the layer
// yields the precheck. recipes must already be sorted by target.
func ResolvePrecheck(layer, suffix string, current version.Version, recipes []catalog.Recipe) *Precheck {
	for _, r := range recipes {
		if !version.SameMinorLine(r.To(), current) || !r.GatesLayer(suffix) {
			continue
		}

		lowest, ok := r.From().Min()
		if !ok {
			continue
		}

		pc := &Precheck{
			From: lowest.ShortForm(),
			To:   r.To().ShortForm(),
		}
		pc.Message = fmt.Sprintf(
			"Confirm the manual %s to %s migration (%s) has been applied to layer %s before continuing",
			pc.From, pc.To, MigrationGuideID(lowest, r.To()), layer)
		return pc
	}
	return nil
}
