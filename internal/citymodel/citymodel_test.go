package citymodel

import "testing"

func TestVertexBufferDedup(t *testing.T) {
	vb := NewVertexBuffer()
	a := vb.Insert(Vertex{1, 2, 3})
	b := vb.Insert(Vertex{1, 2, 3})
	c := vb.Insert(Vertex{1, 2, 3.0000001})

	if a != b {
		t.Fatalf("expected identical bit-pattern vertices to share an index, got %d and %d", a, b)
	}
	if c == a {
		t.Fatalf("expected distinct vertex to get a distinct index")
	}
	if vb.Len() != 2 {
		t.Fatalf("expected 2 distinct vertices, got %d", vb.Len())
	}
}

func TestGeometryStoreResolveRange(t *testing.T) {
	s := NewGeometryStore(6697)
	a := s.Vertices.Insert(Vertex{0, 0, 0})
	b := s.Vertices.Insert(Vertex{1, 0, 0})
	c := s.Vertices.Insert(Vertex{1, 1, 0})
	s.Polygons.Append(Polygon{Exterior: Ring{a, b, c, a}})

	ref := GeometryRef{Kind: KindPolygon, Start: 0, Length: 1}
	if _, err := s.Resolve(ref); err != nil {
		t.Fatalf("expected in-range ref to resolve, got %v", err)
	}

	bad := GeometryRef{Kind: KindPolygon, Start: 0, Length: 2}
	if _, err := s.Resolve(bad); err != ErrGeometryRange {
		t.Fatalf("expected ErrGeometryRange for out-of-range ref, got %v", err)
	}
}

func TestIDSetUniqueness(t *testing.T) {
	ids := NewIDSet()
	if err := ids.Add("bldg-1"); err != nil {
		t.Fatalf("unexpected error adding first id: %v", err)
	}
	if err := ids.Add("bldg-1"); err == nil {
		t.Fatalf("expected error on duplicate id")
	}
	if err := ids.Add(""); err == nil {
		t.Fatalf("expected error on empty id")
	}
}

func TestObjectAttrUniqueness(t *testing.T) {
	o := NewObject("bldg:Building", Feature{ID: "bldg-1"})
	if !o.SetAttr("height", Double(12.5)) {
		t.Fatalf("expected first SetAttr to succeed")
	}
	if o.SetAttr("height", Double(99)) {
		t.Fatalf("expected duplicate SetAttr to fail")
	}
	o.ReplaceAttr("height", Double(99))
	v, ok := o.Attr("height")
	if !ok || v.(Double) != 99 {
		t.Fatalf("expected ReplaceAttr to overwrite, got %v", v)
	}
}

func TestAppearanceResolveIsIdempotent(t *testing.T) {
	as := NewAppearanceStore(16)
	as.AddMaterial(Material{Diffuse: [3]float64{1, 0, 0}})
	ring := RingKey{PolygonIndex: 0, RingIndex: -1}
	as.AssignTheme("lod2", ring)

	m1, ok := as.ResolveRingMaterial("lod2", ring)
	if !ok {
		t.Fatalf("expected resolution to succeed")
	}
	m2, ok := as.ResolveRingMaterial("lod2", ring)
	if !ok || m1 != m2 {
		t.Fatalf("expected idempotent resolution, got %v then %v", m1, m2)
	}
}
