package transform

import (
	"github.com/tobilg/citystream/internal/citygml"
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/projutil"
	"github.com/tobilg/citystream/internal/schema"
)

// Projection reprojects every vertex of an entity's geometry store from
// its current EPSG code to TargetEPSG, rewriting store.EPSG and
// schema.OutputEPSG. Unregistered CRS pairs are an UnsupportedCRS error,
// not a panic.
type Projection struct {
	TargetEPSG int
}

func NewProjection(targetEPSG int) *Projection {
	return &Projection{TargetEPSG: targetEPSG}
}

func (p *Projection) TransformSchema(s *schema.Schema) (*schema.Schema, error) {
	out := s.Clone()
	epsg := p.TargetEPSG
	out.OutputEPSG = &epsg
	return out, nil
}

func (p *Projection) TransformEntity(e *citymodel.Entity) ([]*citymodel.Entity, error) {
	store := e.Geometry
	store.Lock()
	defer store.Unlock()

	if store.EPSG == p.TargetEPSG {
		return []*citymodel.Entity{e}, nil
	}

	fwd, err := projutil.Lookup(store.EPSG, p.TargetEPSG)
	if err != nil {
		return nil, citygmlUnsupportedCRS(err)
	}

	store.Vertices.Each(func(idx uint32, v citymodel.Vertex) {
		x, y, z := fwd(v[0], v[1], v[2])
		store.Vertices.Set(idx, citymodel.Vertex{x, y, z})
	})
	store.EPSG = p.TargetEPSG

	return []*citymodel.Entity{e}, nil
}

// citygmlUnsupportedCRS wraps a projutil lookup failure as the shared
// error taxonomy's UnsupportedCRS kind, the same type the parser uses, so
// callers see one consistent error shape regardless of which stage failed.
func citygmlUnsupportedCRS(err error) error {
	return citygml.NewUnsupportedCRSError(err)
}
