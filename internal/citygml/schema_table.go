package citygml

import "github.com/tobilg/citystream/internal/schema"

// FieldRule is one entry of the declarative element-path-to-attribute
// mapping the parser is driven by: the generated-code table spec.md §9
// describes, reimplemented here as a data-driven table + interpreter
// (the explicitly sanctioned alternative).
type FieldRule struct {
	// Attr is the target attribute name on the enclosing Object.
	Attr string
	// Type says how to convert the element's text/children.
	Type schema.TypeRef
}

// TypeTable maps a declared type name to the set of child element local
// names it recognizes. Namespace is intentionally not part of the key:
// CityGML's namespaces are stable per element local name across its
// extension modules (building, bridge, tunnel, ...), so matching on local
// name alone captures the cases that matter while keeping the table
// small; a namespace-qualified entry can be added per element if two
// modules ever legitimately disagree.
type TypeTable map[string]map[string]FieldRule

// DefaultTable is a representative slice of the CityGML core + building
// module schema: enough surface to exercise every TypeRef kind and the
// Named-type recursion the parser relies on. Real deployments load a
// generated or configured table instead; this is the built-in default
// used when none is supplied via --schema.
var DefaultTable = TypeTable{
	"bldg:Building": {
		"measuredHeight":  {Attr: "measuredHeight", Type: schema.TypeRef{Kind: schema.RefMeasure}},
		"storeysAboveGround": {Attr: "storeysAboveGround", Type: schema.TypeRef{Kind: schema.RefNonNegativeInteger}},
		"storeysBelowGround": {Attr: "storeysBelowGround", Type: schema.TypeRef{Kind: schema.RefNonNegativeInteger}},
		"class":           {Attr: "class", Type: schema.TypeRef{Kind: schema.RefCode}},
		"function":        {Attr: "function", Type: schema.TypeRef{Kind: schema.RefCode}},
		"usage":           {Attr: "usage", Type: schema.TypeRef{Kind: schema.RefCode}},
		"yearOfConstruction": {Attr: "yearOfConstruction", Type: schema.TypeRef{Kind: schema.RefDate}},
		"address":         {Attr: "address", Type: schema.Named("core:Address")},
		"boundedBy":       {Attr: "boundedBy", Type: schema.Named("bldg:BoundarySurfaceProperty")},
	},
	"bldg:BoundarySurfaceProperty": {
		"WallSurface":   {Attr: "surface", Type: schema.Named("bldg:WallSurface")},
		"RoofSurface":   {Attr: "surface", Type: schema.Named("bldg:RoofSurface")},
		"GroundSurface": {Attr: "surface", Type: schema.Named("bldg:GroundSurface")},
		"ClosureSurface": {Attr: "surface", Type: schema.Named("bldg:ClosureSurface")},
		"Door":          {Attr: "surface", Type: schema.Named("bldg:Door")},
		"Window":        {Attr: "surface", Type: schema.Named("bldg:Window")},
	},
	"core:Address": {
		"locality":   {Attr: "locality", Type: schema.TypeRef{Kind: schema.RefString}},
		"postalCode": {Attr: "postalCode", Type: schema.TypeRef{Kind: schema.RefString}},
	},
	"tran:Road": {
		"function":       {Attr: "function", Type: schema.TypeRef{Kind: schema.RefCode}},
		"trafficArea":    {Attr: "trafficArea", Type: schema.Named("tran:TrafficArea")},
	},
	"veg:PlantCover": {
		"averageHeight": {Attr: "averageHeight", Type: schema.TypeRef{Kind: schema.RefMeasure}},
	},
	"gen:genericAttribute": {},
}

