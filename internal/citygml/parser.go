// Package citygml implements the streaming schema-driven XML parser (C4):
// it pulls tokens from encoding/xml one at a time and descends into
// nested objects and geometry wrappers by recursive calls, so Go stack
// depth grows with the element nesting depth of the input; there is no
// explicit path stack and no depth limit.
package citygml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/codelist"
	"github.com/tobilg/citystream/internal/schema"
)

// nsPrefix maps well-known CityGML namespace URIs to the conventional
// prefix used as the TypeTable key's namespace segment. Elements in any
// other namespace resolve to their bare local name, with no prefix.
var nsPrefix = map[string]string{
	"http://www.opengis.net/citygml/building/2.0":       "bldg",
	"http://www.opengis.net/citygml/transportation/2.0":  "tran",
	"http://www.opengis.net/citygml/vegetation/2.0":       "veg",
	"http://www.opengis.net/citygml/cityfurniture/2.0":    "frn",
	"http://www.opengis.net/citygml/bridge/2.0":           "brid",
	"http://www.opengis.net/citygml/tunnel/2.0":           "tun",
	"http://www.opengis.net/citygml/generics/2.0":         "gen",
	"http://www.opengis.net/citygml/landuse/2.0":          "luse",
	"http://www.opengis.net/citygml/relief/2.0":           "dem",
	"http://www.opengis.net/citygml/waterbody/2.0":        "wtr",
	"http://www.opengis.net/citygml/cityobjectgroup/2.0":  "grp",
	"http://www.opengis.net/citygml/2.0":                  "core",
	"http://www.opengis.net/gml":                          "gml",
}

// ErrorHandler decides, given a per-top-level-feature error, whether the
// parser should skip that feature and continue (true) or abort (false).
type ErrorHandler func(err error) (skip bool)

// Parser drives the event walk. Table is the declarative element-path
// mapping (C4's contract); Codelist resolves Code values; OnEntity is
// called once per completed top-level feature, with its own geometry and
// appearance stores.
type Parser struct {
	Table     TypeTable
	Codelist  codelist.Resolver
	OnEntity  func(*citymodel.Entity) error
	OnError   ErrorHandler
	BaseURL   string
	SourceEPSG int
	CacheSize int

	schema *schema.Schema
}

// NewParser returns a parser with the given table, defaulting Codelist to
// a no-op resolver and OnError to fail-fast when left nil.
func NewParser(table TypeTable, onEntity func(*citymodel.Entity) error) *Parser {
	return &Parser{
		Table:      table,
		Codelist:   codelist.NoopResolver{},
		OnEntity:   onEntity,
		SourceEPSG: 6697,
		CacheSize:  256,
	}
}

// Schema returns the schema accumulated so far (type defs are added
// lazily the first time each type name is encountered).
func (p *Parser) Schema() *schema.Schema {
	if p.schema == nil {
		p.schema = schema.New()
	}
	return p.schema
}

// Parse reads one CityModel document from r, calling OnEntity once per
// top-level feature member. A per-feature error is routed through
// OnError; returning false there aborts Parse immediately.
func (p *Parser) Parse(r io.Reader) error {
	dec := xml.NewDecoder(r)
	p.schema = schema.New()

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return newErr(KindXML, "", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if isMemberWrapper(start.Name.Local) {
			if err := p.parseMember(dec, start); err != nil {
				handled := p.OnError != nil && p.OnError(err)
				if !handled {
					return err
				}
			}
			continue
		}

		if err := skipSubtree(dec, start); err != nil {
			return err
		}
	}
}

func isMemberWrapper(local string) bool {
	return local == "cityObjectMember" || local == "featureMember" || local == "member"
}

// parseMember parses one <cityObjectMember> and consumes through its
// matching End, regardless of whether the inner feature parsed cleanly.
func (p *Parser) parseMember(dec *xml.Decoder, wrapper xml.StartElement) error {
	inner, err := nextStart(dec, wrapper)
	if err != nil {
		return err
	}
	if inner == nil {
		// empty wrapper, nothing to do
		return nil
	}

	typeName := p.resolveTypeName(*inner)
	store := citymodel.NewGeometryStore(p.SourceEPSG)
	appearance := citymodel.NewAppearanceStore(p.CacheSize)

	obj, perr := p.parseObject(dec, typeName, *inner, store, appearance)
	// Always drain to the wrapper's End so the outer loop stays aligned,
	// even when parseObject bailed out early on error.
	if derr := drainTo(dec, wrapper.Name.Local); derr != nil && perr == nil {
		perr = derr
	}
	if perr != nil {
		return perr
	}

	entity := &citymodel.Entity{
		Root:       obj,
		BaseURL:    p.BaseURL,
		Geometry:   store,
		Appearance: appearance,
	}
	return p.OnEntity(entity)
}

// resolveTypeName turns a Start element's (namespace, local) into the
// TypeTable key, e.g. "bldg:Building".
func (p *Parser) resolveTypeName(start xml.StartElement) string {
	if prefix, ok := nsPrefix[start.Name.Space]; ok {
		return prefix + ":" + start.Name.Local
	}
	return start.Name.Local
}

// roleTrack records, per geometry role, which index of a feature's
// Geometries slice currently holds the winning (highest so far) LoD, so a
// later higher LoD can overwrite it in place.
type roleTrack struct {
	idx int
	lod citymodel.LoD
}

// parseObject parses the element already opened by start (of typeName)
// into an Object, consuming through its matching End. store/appearance
// are the top-level feature's shared stores, threaded down to every
// nested object so geometry always lands in the same place.
func (p *Parser) parseObject(dec *xml.Decoder, typeName string, start xml.StartElement, store *citymodel.GeometryStore, appearance *citymodel.AppearanceStore) (*citymodel.Object, error) {
	stereotype, _ := p.stereotypeFor(start)
	obj := citymodel.NewObject(typeName, stereotype)

	var roles map[string]*roleTrack
	if _, isFeature := stereotype.(citymodel.Feature); isFeature {
		roles = make(map[string]*roleTrack)
	}

	rules := p.Table[typeName]
	td := p.schemaTypeDef(typeName, stereotype)

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, newErr(KindIO, typeName, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if role, lod, ok := lodRole(t.Name.Local); ok && roles != nil {
				if err := p.consumeGeometryContainer(dec, t, role, lod, store, obj, roles); err != nil {
					return nil, err
				}
				continue
			}
			if geometryLocalNames[t.Name.Local] {
				// bare geometry with no lodN wrapper: role-less, LoD 0.
				gp := &geometryParser{dec: dec, store: store}
				ref, err := gp.parseGeometryElement(t)
				if err != nil && ref.Length == 0 {
					return nil, err
				}
				if f, ok := obj.Stereotype.(citymodel.Feature); ok {
					f.Geometries = append(f.Geometries, ref)
					obj.Stereotype = f
				}
				continue
			}

			rule, known := rules[t.Name.Local]
			if !known {
				if err := skipSubtree(dec, t); err != nil {
					return nil, err
				}
				continue
			}

			if rule.Type.Kind == schema.RefNamed {
				child, err := p.parseObject(dec, rule.Type.Name, t, store, appearance)
				if err != nil {
					return nil, err
				}
				p.addOrAppendAttr(obj, rule.Attr, child)
			} else {
				v, err := p.parseLeaf(dec, t, rule.Type)
				if err != nil {
					return nil, err
				}
				p.addOrAppendAttr(obj, rule.Attr, v)
			}
			p.addSchemaAttr(td, rule)

		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return obj, nil
			}
		}
	}
}

func (p *Parser) addSchemaAttr(typeName string, rule FieldRule) {
	p.Schema().AddAttribute(typeName, schema.AttrDef{Name: rule.Attr, Type: rule.Type})
}

func (p *Parser) schemaTypeDef(typeName string, stereotype citymodel.Stereotype) string {
	s := p.Schema()
	if _, exists := s.Types[typeName]; !exists {
		kind := schema.DefData
		switch stereotype.(type) {
		case citymodel.Feature:
			kind = schema.DefFeature
		case citymodel.ObjectRef:
			kind = schema.DefObject
		}
		s.Types[typeName] = schema.TypeDef{Kind: kind, MinOccurs: 0, MaxOccurs: -1}
	}
	return typeName
}

// consumeGeometryContainer handles a "lodNRole" wrapper: descend to the
// real geometry element inside, parse it, and apply highest-LoD-wins.
func (p *Parser) consumeGeometryContainer(dec *xml.Decoder, wrapper xml.StartElement, role string, lod citymodel.LoD, store *citymodel.GeometryStore, obj *citymodel.Object, roles map[string]*roleTrack) error {
	inner, err := nextStart(dec, wrapper)
	if err != nil {
		return err
	}
	if inner == nil {
		return nil
	}

	gp := &geometryParser{dec: dec, store: store}
	ref, perr := gp.parseGeometryElement(*inner)
	if derr := drainTo(dec, wrapper.Name.Local); derr != nil {
		if perr == nil {
			perr = derr
		}
	}
	if perr != nil && ref.Length == 0 {
		return perr
	}
	ref.LoD = lod

	f, ok := obj.Stereotype.(citymodel.Feature)
	if !ok {
		return nil
	}

	prev, seen := roles[role]
	if seen && prev.lod > lod {
		// a higher LoD already won for this role; this lower one is
		// discarded (vertices already landed in the store, which is
		// fine — compaction is not required).
		return nil
	}
	if seen && prev.lod == lod {
		f.Geometries = append(f.Geometries, ref)
		obj.Stereotype = f
		return nil
	}
	if seen {
		f.Geometries[prev.idx] = ref
		roles[role].lod = lod
		obj.Stereotype = f
		return nil
	}
	idx := len(f.Geometries)
	f.Geometries = append(f.Geometries, ref)
	roles[role] = &roleTrack{idx: idx, lod: lod}
	obj.Stereotype = f
	return nil
}

// stereotypeFor decides a child element's stereotype: a gml:id attribute
// marks it a Feature; everything else parsed via a Named type ref is a
// Data bag (no id, no geometry of its own beyond what it delegates).
func (p *Parser) stereotypeFor(start xml.StartElement) (citymodel.Stereotype, string) {
	for _, a := range start.Attr {
		if a.Name.Local == "id" {
			return citymodel.Feature{ID: a.Value}, a.Value
		}
	}
	return citymodel.Data{}, ""
}

// addOrAppendAttr sets name=v, or — if name is already set — upgrades the
// attribute to an Array and appends, matching repeatable elements like
// boundedBy.
func (p *Parser) addOrAppendAttr(obj *citymodel.Object, name string, v citymodel.Value) {
	existing, ok := obj.Attr(name)
	if !ok {
		obj.SetAttr(name, v)
		return
	}
	if arr, isArr := existing.(citymodel.Array); isArr {
		arr.Items = append(arr.Items, v)
		obj.ReplaceAttr(name, arr)
		return
	}
	obj.ReplaceAttr(name, citymodel.Array{Items: []citymodel.Value{existing, v}})
}

// parseLeaf converts a matched element's content according to ref.Kind.
func (p *Parser) parseLeaf(dec *xml.Decoder, start xml.StartElement, ref schema.TypeRef) (citymodel.Value, error) {
	switch ref.Kind {
	case schema.RefCode:
		codeSpace := attrValue(start, "codeSpace")
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		label, _ := p.Codelist.Resolve(p.BaseURL, codeSpace, text)
		return citymodel.Code{CodeValue: text, CodeSpace: codeSpace, Label: label}, nil
	case schema.RefMeasure:
		uom := attrValue(start, "uom")
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, newErr(KindInvalidValue, start.Name.Local, err)
		}
		return citymodel.Measure{Value: f, Unit: uom}, nil
	case schema.RefInteger, schema.RefNonNegativeInteger:
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, newErr(KindInvalidValue, start.Name.Local, err)
		}
		if ref.Kind == schema.RefNonNegativeInteger && n < 0 {
			return nil, newErr(KindInvalidValue, start.Name.Local, fmt.Errorf("negative value for non-negative integer"))
		}
		return citymodel.Integer(n), nil
	case schema.RefDouble:
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, newErr(KindInvalidValue, start.Name.Local, err)
		}
		return citymodel.Double(f), nil
	case schema.RefBoolean:
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, newErr(KindInvalidValue, start.Name.Local, err)
		}
		return citymodel.Boolean(b), nil
	case schema.RefURI:
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		return citymodel.URI(strings.TrimSpace(text)), nil
	case schema.RefDate:
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse("2006-01-02", strings.TrimSpace(text))
		if err != nil {
			return nil, newErr(KindInvalidValue, start.Name.Local, err)
		}
		return citymodel.Date{Time: t}, nil
	case schema.RefDateTime:
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(text))
		if err != nil {
			return nil, newErr(KindInvalidValue, start.Name.Local, err)
		}
		return citymodel.DateTime{Time: t}, nil
	case schema.RefJSONString:
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		return citymodel.String(text), nil
	default: // RefString, RefUnknown, RefPoint (fallback to text)
		text, err := readText(dec, start)
		if err != nil {
			return nil, err
		}
		return citymodel.String(text), nil
	}
}

func attrValue(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// nextStart returns the next StartElement token, skipping whitespace-only
// CharData, or nil if wrapper's End arrives first (empty wrapper).
func nextStart(dec *xml.Decoder, wrapper xml.StartElement) (*xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, newErr(KindIO, wrapper.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return &t, nil
		case xml.EndElement:
			if t.Name.Local == wrapper.Name.Local {
				return nil, nil
			}
		}
	}
}

// drainTo consumes tokens until the End matching localName, tolerating
// nested elements (used after a sub-parser may have left extra
// whitespace/CharData before the enclosing wrapper's End). End tokens of
// elements a failed sub-parser left open are consumed without counting,
// so draining after an error still stops at localName's End.
func drainTo(dec *xml.Decoder, localName string) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return newErr(KindIO, localName, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if t.Name.Local == localName && depth == 0 {
				return nil
			}
			if depth > 0 {
				depth--
			}
		}
	}
}
