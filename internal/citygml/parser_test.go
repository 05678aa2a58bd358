package citygml

import (
	"strings"
	"testing"

	"github.com/tobilg/citystream/internal/citymodel"
)

const buildingDoc = `<?xml version="1.0" encoding="UTF-8"?>
<core:CityModel xmlns:core="http://www.opengis.net/citygml/2.0"
                 xmlns:bldg="http://www.opengis.net/citygml/building/2.0"
                 xmlns:gml="http://www.opengis.net/gml">
  <core:cityObjectMember>
    <bldg:Building gml:id="bldg-1">
      <bldg:measuredHeight uom="m">12.5</bldg:measuredHeight>
      <bldg:storeysAboveGround>4</bldg:storeysAboveGround>
      <bldg:lod1Solid>
        <gml:Solid>
          <gml:exterior>
            <gml:Polygon srsDimension="3">
              <gml:exterior>
                <gml:LinearRing>
                  <gml:posList>35.0 139.0 0 35.0 139.1 0 35.1 139.1 0 35.0 139.0 0</gml:posList>
                </gml:LinearRing>
              </gml:exterior>
            </gml:Polygon>
          </gml:exterior>
        </gml:Solid>
      </bldg:lod1Solid>
      <bldg:lod2Solid>
        <gml:Solid>
          <gml:exterior>
            <gml:Polygon srsDimension="3">
              <gml:exterior>
                <gml:LinearRing>
                  <gml:posList>35.0 139.0 0 35.0 139.1 0 35.1 139.1 0 35.0 139.0 0</gml:posList>
                </gml:LinearRing>
              </gml:exterior>
            </gml:Polygon>
          </gml:exterior>
        </gml:Solid>
      </bldg:lod2Solid>
      <bldg:boundedBy>
        <bldg:WallSurface gml:id="wall-1">
          <bldg:lod2MultiSurface>
            <gml:MultiSurface>
              <gml:surfaceMember>
                <gml:Polygon srsDimension="3">
                  <gml:exterior>
                    <gml:LinearRing>
                      <gml:posList>35.0 139.0 0 35.0 139.1 0 35.1 139.1 10 35.0 139.0 0</gml:posList>
                    </gml:LinearRing>
                  </gml:exterior>
                </gml:Polygon>
              </gml:surfaceMember>
            </gml:MultiSurface>
          </bldg:lod2MultiSurface>
        </bldg:WallSurface>
      </bldg:boundedBy>
    </bldg:Building>
  </core:cityObjectMember>
</core:CityModel>
`

func TestParseBuildingProducesOneEntityWithHighestLoDGeometry(t *testing.T) {
	var entities []*citymodel.Entity
	p := NewParser(DefaultTable, func(e *citymodel.Entity) error {
		entities = append(entities, e)
		return nil
	})

	if err := p.Parse(strings.NewReader(buildingDoc)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 top-level entity, got %d", len(entities))
	}

	root, ok := entities[0].RootObject()
	if !ok {
		t.Fatalf("root is not an Object")
	}
	if root.TypeName != "bldg:Building" {
		t.Fatalf("unexpected type name %q", root.TypeName)
	}

	feature, ok := root.Stereotype.(citymodel.Feature)
	if !ok {
		t.Fatalf("root is not a Feature")
	}
	if feature.ID != "bldg-1" {
		t.Fatalf("unexpected feature id %q", feature.ID)
	}

	// lod1Solid and lod2Solid share the "Solid" role: the higher LoD wins
	// and only one geometry ref should remain for that role.
	solidCount := 0
	for _, g := range feature.Geometries {
		if g.LoD == 2 {
			solidCount++
		}
		if g.LoD == 1 {
			t.Fatalf("lower LoD geometry should have been superseded, found LoD %d", g.LoD)
		}
	}
	if solidCount == 0 {
		t.Fatalf("expected at least one LoD 2 geometry to survive")
	}

	height, ok := root.Attr("measuredHeight")
	if !ok {
		t.Fatalf("expected measuredHeight attribute")
	}
	m, ok := height.(citymodel.Measure)
	if !ok || m.Value != 12.5 || m.Unit != "m" {
		t.Fatalf("unexpected measuredHeight value %#v", height)
	}

	storeys, ok := root.Attr("storeysAboveGround")
	if !ok || storeys.(citymodel.Integer) != 4 {
		t.Fatalf("unexpected storeysAboveGround value %#v", storeys)
	}

	boundedBy, ok := root.Attr("boundedBy")
	if !ok {
		t.Fatalf("expected boundedBy attribute")
	}
	boundary, ok := boundedBy.(*citymodel.Object)
	if !ok {
		t.Fatalf("boundedBy is not an Object: %#v", boundedBy)
	}
	surface, ok := boundary.Attr("surface")
	if !ok {
		t.Fatalf("expected the boundary surface property to carry a surface attribute")
	}
	wall, ok := surface.(*citymodel.Object)
	if !ok {
		t.Fatalf("surface is not an Object: %#v", surface)
	}
	wallFeature, ok := wall.Stereotype.(citymodel.Feature)
	if !ok || wallFeature.ID != "wall-1" {
		t.Fatalf("unexpected wall surface stereotype %#v", wall.Stereotype)
	}
	if len(wallFeature.Geometries) != 1 {
		t.Fatalf("expected wall surface to carry its own geometry, got %d refs", len(wallFeature.Geometries))
	}

	// the building and its wall surface each get their own GeometryStore
	// slice but share the same top-level feature's store instance.
	if entities[0].Geometry.Polygons.Len() == 0 {
		t.Fatalf("expected polygons to have been inserted into the shared store")
	}
}

func TestParseSkipsUnmappedChildElement(t *testing.T) {
	doc := `<?xml version="1.0"?>
<core:CityModel xmlns:core="http://www.opengis.net/citygml/2.0"
                 xmlns:veg="http://www.opengis.net/citygml/vegetation/2.0"
                 xmlns:gml="http://www.opengis.net/gml">
  <core:cityObjectMember>
    <veg:PlantCover gml:id="plant-1">
      <veg:averageHeight uom="m">3.2</veg:averageHeight>
      <veg:unmappedChild>whatever</veg:unmappedChild>
    </veg:PlantCover>
  </core:cityObjectMember>
</core:CityModel>
`
	var got *citymodel.Entity
	p := NewParser(DefaultTable, func(e *citymodel.Entity) error {
		got = e
		return nil
	})
	if err := p.Parse(strings.NewReader(doc)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected one entity")
	}
	obj, _ := got.RootObject()
	if _, ok := obj.Attr("unmappedChild"); ok {
		t.Fatalf("unmapped child should have been skipped, not recorded")
	}
	if h, ok := obj.Attr("averageHeight"); !ok || h.(citymodel.Measure).Value != 3.2 {
		t.Fatalf("expected averageHeight to be parsed, got %#v", h)
	}
}

func TestParseAbortsOnErrorWithoutHandler(t *testing.T) {
	doc := `<?xml version="1.0"?>
<core:CityModel xmlns:core="http://www.opengis.net/citygml/2.0"
                 xmlns:bldg="http://www.opengis.net/citygml/building/2.0"
                 xmlns:gml="http://www.opengis.net/gml">
  <core:cityObjectMember>
    <bldg:Building gml:id="bad-1">
      <bldg:lod1Solid>
        <gml:Solid>
          <gml:exterior>
            <gml:Polygon>
              <gml:exterior>
                <gml:LinearRing>
                  <gml:posList>35.0 139.0</gml:posList>
                </gml:LinearRing>
              </gml:exterior>
            </gml:Polygon>
          </gml:exterior>
        </gml:Solid>
      </bldg:lod1Solid>
    </bldg:Building>
  </core:cityObjectMember>
</core:CityModel>
`
	p := NewParser(DefaultTable, func(e *citymodel.Entity) error { return nil })
	if err := p.Parse(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected an odd-coordinate-count error")
	}
}

func TestParseSkipsFeatureWhenErrorHandlerAllows(t *testing.T) {
	doc := `<?xml version="1.0"?>
<core:CityModel xmlns:core="http://www.opengis.net/citygml/2.0"
                 xmlns:bldg="http://www.opengis.net/citygml/building/2.0"
                 xmlns:gml="http://www.opengis.net/gml">
  <core:cityObjectMember>
    <bldg:Building gml:id="bad-1">
      <bldg:lod1Solid>
        <gml:Solid>
          <gml:exterior>
            <gml:Polygon>
              <gml:exterior>
                <gml:LinearRing>
                  <gml:posList>35.0 139.0</gml:posList>
                </gml:LinearRing>
              </gml:exterior>
            </gml:Polygon>
          </gml:exterior>
        </gml:Solid>
      </bldg:lod1Solid>
    </bldg:Building>
  </core:cityObjectMember>
  <core:cityObjectMember>
    <bldg:Building gml:id="good-1">
      <bldg:measuredHeight uom="m">5</bldg:measuredHeight>
    </bldg:Building>
  </core:cityObjectMember>
</core:CityModel>
`
	var ids []string
	p := NewParser(DefaultTable, func(e *citymodel.Entity) error {
		id, _ := e.FeatureID()
		ids = append(ids, id)
		return nil
	})
	p.OnError = func(err error) bool { return true }

	if err := p.Parse(strings.NewReader(doc)); err != nil {
		t.Fatalf("unexpected error with a permissive handler: %v", err)
	}
	if len(ids) != 1 || ids[0] != "good-1" {
		t.Fatalf("expected only the good feature to be emitted, got %v", ids)
	}
}
