package transform

import (
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
)

// Appearance resolves each ring's assigned theme against the entity's
// appearance store and records the resolved material as a SurfaceSpan so
// sinks can look it up by polygon position without re-resolving. It is
// idempotent: a ring already recorded in resolved is left untouched.
type Appearance struct {
	Theme string
}

func NewAppearance(theme string) *Appearance {
	return &Appearance{Theme: theme}
}

func (a *Appearance) TransformSchema(s *schema.Schema) (*schema.Schema, error) {
	return s.Clone(), nil
}

func (a *Appearance) TransformEntity(e *citymodel.Entity) ([]*citymodel.Entity, error) {
	if e.Appearance == nil {
		return []*citymodel.Entity{e}, nil
	}
	for _, ring := range e.Appearance.RingsForTheme(a.Theme) {
		if _, resolved := e.Appearance.ResolvedMaterial(ring); resolved {
			continue
		}
		e.Appearance.ResolveRingMaterial(a.Theme, ring)
	}
	return []*citymodel.Entity{e}, nil
}
