package schema

import "testing"

func TestAddAttributeIsIdempotent(t *testing.T) {
	s := New()
	s.Types["bldg:Building"] = TypeDef{Kind: DefFeature}

	s.AddAttribute("bldg:Building", AttrDef{Name: "parentId", Type: TypeRef{Kind: RefString}})
	s.AddAttribute("bldg:Building", AttrDef{Name: "parentId", Type: TypeRef{Kind: RefString}})

	td := s.Types["bldg:Building"]
	if len(td.Attributes) != 1 {
		t.Fatalf("expected a single parentId attribute, got %d", len(td.Attributes))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	s.Types["a"] = TypeDef{Kind: DefData, Attributes: []AttrDef{{Name: "x"}}}

	c := s.Clone()
	c.Types["a"] = TypeDef{Kind: DefData, Attributes: []AttrDef{{Name: "y"}}}

	if s.Types["a"].Attributes[0].Name != "x" {
		t.Fatalf("expected original schema untouched by clone mutation")
	}
}

func TestFreezeMarksFrozen(t *testing.T) {
	s := New()
	f := s.Freeze()
	if !f.Frozen() {
		t.Fatalf("expected frozen schema to report Frozen() == true")
	}
	if s.Frozen() {
		t.Fatalf("expected original schema to remain unfrozen")
	}
}
