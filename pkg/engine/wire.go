package engine

// WaveDocument is the wire form of a wave as returned to API callers.
type WaveDocument struct {
	WaveNumber  int              `json:"waveNumber" yaml:"waveNumber"`
	Description string           `json:"description" yaml:"description"`
	FromVersion string           `json:"fromVersion" yaml:"fromVersion"`
	NextVersion string           `json:"nextVersion" yaml:"nextVersion"`
	ToVersion   string           `json:"toVersion" yaml:"toVersion"`
	Layers      []ActionDocument `json:"layers" yaml:"layers"`
}

// ActionDocument is the wire form of a layer upgrade action.
type ActionDocument struct {
	Name           string            `json:"name" yaml:"name"`
	CurrentVersion string            `json:"currentVersion" yaml:"currentVersion"`
	NextVersion    string            `json:"nextVersion" yaml:"nextVersion"`
	Recipe         *string           `json:"recipe" yaml:"recipe"`
	RequiresManual bool              `json:"requiresManual" yaml:"requiresManual"`
	MigrationGuide string            `json:"migrationGuide,omitempty" yaml:"migrationGuide,omitempty"`
	Precheck       *PrecheckDocument `json:"precheck,omitempty" yaml:"precheck,omitempty"`
}

// PrecheckDocument is the wire form of a precheck.
type PrecheckDocument struct {
	Type        string `json:"type" yaml:"type"`
	FromVersion string `json:"fromVersion" yaml:"fromVersion"`
	ToVersion   string `json:"toVersion" yaml:"toVersion"`
	Message     string `json:"message" yaml:"message"`
}

// PrecheckTypeManual is the only precheck type the planner emits.
const PrecheckTypeManual = "manual"

// Documents converts the plan's waves to their wire form. The result is never
// nil so that an empty plan encodes as [].
func (p *Plan) Documents() []WaveDocument {
	docs := make([]WaveDocument, 0, len(p.Waves))
	for _, w := range p.Waves {
		doc := WaveDocument{
			WaveNumber:  w.Number,
			Description: w.Description,
			FromVersion: w.From.String(),
			NextVersion: w.To.String(),
			ToVersion:   p.Target.String(),
			Layers:      make([]ActionDocument, 0, len(w.Actions)),
		}
		for _, a := range w.Actions {
			doc.Layers = append(doc.Layers, a.document())
		}
		docs = append(docs, doc)
	}
	return docs
}

func (a LayerUpgradeAction) document() ActionDocument {
	doc := ActionDocument{
		Name:           a.Layer,
		CurrentVersion: a.Current.String(),
		NextVersion:    a.Next.String(),
		RequiresManual: a.RequiresManual,
		MigrationGuide: a.GuideID,
	}
	if a.RecipeID != "" {
		id := a.RecipeID
		doc.Recipe = &id
	}
	if a.Precheck != nil {
		doc.Precheck = &PrecheckDocument{
			Type:        PrecheckTypeManual,
			FromVersion: a.Precheck.From,
			ToVersion:   a.Precheck.To,
			Message:     a.Precheck.Message,
		}
	}
	return doc
}
