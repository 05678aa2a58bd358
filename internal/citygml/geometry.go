package citygml

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/tobilg/citystream/internal/citymodel"
)

// geometryLocalNames is the set of GML element local names the geometry
// sub-parser recognizes as the root of a geometry subtree, per spec.md §4.1.
var geometryLocalNames = map[string]bool{
	"Polygon":     true,
	"Solid":       true,
	"MultiSurface": true,
	"MultiCurve":   true,
	"Point":        true,
	"Tin":          true,
}

// lodRole splits a containing element's local name such as "lod2Solid"
// into its geometry role ("Solid") and LoD (2). Elements that don't match
// the "lodN..." shape return ok=false and the caller treats the geometry
// as role-less (LoD 0, never superseded).
func lodRole(local string) (role string, lod citymodel.LoD, ok bool) {
	if !strings.HasPrefix(local, "lod") || len(local) < 4 {
		return "", 0, false
	}
	n, err := strconv.Atoi(local[3:4])
	if err != nil {
		return "", 0, false
	}
	return local[4:], citymodel.LoD(n), true
}

// geometryParser walks one geometry subtree (already positioned just
// after its opening Start token) and inserts vertices/polygons/lines into
// store, returning the GeometryRef describing what it added.
type geometryParser struct {
	dec   *xml.Decoder
	store *citymodel.GeometryStore
}

// parseGeometryElement dispatches on local name and consumes exactly the
// subtree rooted at start, including its matching End token.
func (g *geometryParser) parseGeometryElement(start xml.StartElement) (citymodel.GeometryRef, error) {
	switch start.Name.Local {
	case "Polygon":
		return g.parsePolygon(start)
	case "Tin":
		return g.parseTin(start)
	case "Solid", "MultiSurface":
		return g.parseSurfaceSet(start)
	case "MultiCurve":
		return g.parseMultiCurve(start)
	case "Point":
		return g.parsePoint(start)
	default:
		if err := skipSubtree(g.dec, start); err != nil {
			return citymodel.GeometryRef{}, err
		}
		return citymodel.GeometryRef{}, newErr(KindSchemaViolation, start.Name.Local, errUnrecognizedGeometry)
	}
}

// parseSurfaceSet handles Solid and MultiSurface: both are, for the
// store's purposes, just a bag of Polygon members, however deeply they
// are nested under CompositeSurface/surfaceMember/exterior wrappers.
func (g *geometryParser) parseSurfaceSet(start xml.StartElement) (citymodel.GeometryRef, error) {
	startIdx := g.store.Polygons.Len()
	if err := g.collectPolygons(start); err != nil {
		return citymodel.GeometryRef{}, err
	}
	length := g.store.Polygons.Len() - startIdx
	return citymodel.GeometryRef{Kind: citymodel.KindPolygon, Start: startIdx, Length: length}, nil
}

// collectPolygons walks the subtree rooted at start, consuming through its
// matching End, parsing every Polygon found at any depth and treating any
// other element name (CompositeSurface, surfaceMember, exterior, patches,
// ...) as a transparent wrapper.
func (g *geometryParser) collectPolygons(start xml.StartElement) error {
	for {
		tok, err := g.dec.Token()
		if err != nil {
			return newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Polygon" {
				if _, err := g.parsePolygon(t); err != nil {
					return err
				}
			} else if err := g.collectPolygons(t); err != nil {
				return err
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil
			}
		}
	}
}

// parseTin triangulates: each gml:Triangle is inserted as a 3-vertex
// closed polygon kind Triangle. Coordinates outside a Triangle element
// (e.g. a bare posList directly under trianglePatches) are ignored.
func (g *geometryParser) parseTin(start xml.StartElement) (citymodel.GeometryRef, error) {
	startIdx := g.store.Polygons.Len()
	if err := g.collectTriangles(start); err != nil {
		return citymodel.GeometryRef{}, err
	}
	length := g.store.Polygons.Len() - startIdx
	return citymodel.GeometryRef{Kind: citymodel.KindPolygon, Start: startIdx, Length: length}, nil
}

// collectTriangles walks the subtree rooted at start looking for Triangle
// elements at any depth, transparent to its trianglePatches wrapper.
func (g *geometryParser) collectTriangles(start xml.StartElement) error {
	for {
		tok, err := g.dec.Token()
		if err != nil {
			return newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Triangle" {
				if err := g.parseTriangle(t); err != nil {
					return err
				}
			} else if err := g.collectTriangles(t); err != nil {
				return err
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil
			}
		}
	}
}

func (g *geometryParser) parseTriangle(start xml.StartElement) error {
	dim := 3
	for {
		tok, err := g.dec.Token()
		if err != nil {
			return newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "posList" || t.Name.Local == "exterior" {
				var ring citymodel.Ring
				var err error
				if t.Name.Local == "exterior" {
					ring, err = g.parseLinearRingContainer(t, dim)
				} else {
					ring, err = g.parseRingFrom(t, dim)
				}
				if err != nil {
					return err
				}
				g.store.Polygons.Append(citymodel.Polygon{Exterior: ring, Kind: citymodel.PolygonTriangle})
			} else {
				if err := skipSubtree(g.dec, t); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil
			}
		}
	}
}

func (g *geometryParser) parsePolygon(start xml.StartElement) (citymodel.GeometryRef, error) {
	dim := srsDimension(start, 3)
	var poly citymodel.Polygon
	for {
		tok, err := g.dec.Token()
		if err != nil {
			return citymodel.GeometryRef{}, newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "exterior":
				ring, err := g.parseLinearRingContainer(t, dim)
				if err != nil {
					return citymodel.GeometryRef{}, err
				}
				poly.Exterior = ring
			case "interior":
				ring, err := g.parseLinearRingContainer(t, dim)
				if err != nil {
					return citymodel.GeometryRef{}, err
				}
				poly.Interior = append(poly.Interior, ring)
			default:
				if err := skipSubtree(g.dec, t); err != nil {
					return citymodel.GeometryRef{}, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				idx := g.store.Polygons.Append(poly)
				return citymodel.GeometryRef{Kind: citymodel.KindPolygon, Start: idx, Length: 1}, nil
			}
		}
	}
}

func (g *geometryParser) parseLinearRingContainer(start xml.StartElement, dim int) (citymodel.Ring, error) {
	for {
		tok, err := g.dec.Token()
		if err != nil {
			return nil, newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "LinearRing" {
				return g.parseRingFrom(t, dim)
			}
			if err := skipSubtree(g.dec, t); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil, nil
			}
		}
	}
}

// parseRingFrom reads a LinearRing's (or bare posList's) coordinate text,
// inserts each vertex, closes the ring if it isn't already closed, and
// consumes through the matching End.
func (g *geometryParser) parseRingFrom(start xml.StartElement, dim int) (citymodel.Ring, error) {
	var coords []float64
	for {
		tok, err := g.dec.Token()
		if err != nil {
			return nil, newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "posList" || t.Name.Local == "pos" {
				text, err := readText(g.dec, t)
				if err != nil {
					return nil, err
				}
				vals, err := parseFloats(text)
				if err != nil {
					return nil, newErr(KindInvalidValue, t.Name.Local, err)
				}
				coords = append(coords, vals...)
			} else {
				if err := skipSubtree(g.dec, t); err != nil {
					return nil, err
				}
			}
		case xml.CharData:
			if s := strings.TrimSpace(string(t)); s != "" {
				vals, err := parseFloats(s)
				if err != nil {
					return nil, newErr(KindInvalidValue, start.Name.Local, err)
				}
				coords = append(coords, vals...)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return g.buildRing(coords, dim)
			}
		}
	}
}

// buildRing groups flat lat/lon/height-ordered coordinates into 3-tuples,
// swaps to lon/lat/height, inserts into the vertex buffer, and closes the
// ring by re-appending the first index if it isn't already the last.
func (g *geometryParser) buildRing(coords []float64, dim int) (citymodel.Ring, error) {
	if dim <= 0 {
		dim = 3
	}
	if len(coords)%dim != 0 {
		return nil, newErr(KindInvalidValue, "posList", errOddCoordinateCount)
	}
	ring := make(citymodel.Ring, 0, len(coords)/dim+1)
	for i := 0; i+dim <= len(coords); i += dim {
		lat, lon := coords[i], coords[i+1]
		h := 0.0
		if dim >= 3 {
			h = coords[i+2]
		}
		// source ordering is lat/lon/height; store lon/lat/height.
		idx := g.store.Vertices.Insert(citymodel.Vertex{lon, lat, h})
		ring = append(ring, idx)
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring, nil
}

func (g *geometryParser) parseMultiCurve(start xml.StartElement) (citymodel.GeometryRef, error) {
	dim := srsDimension(start, 3)
	startIdx := g.store.Lines.Len()
	if err := g.collectLineStrings(start, dim); err != nil {
		return citymodel.GeometryRef{}, err
	}
	length := g.store.Lines.Len() - startIdx
	return citymodel.GeometryRef{Kind: citymodel.KindLineString, Start: startIdx, Length: length}, nil
}

// collectLineStrings walks the subtree rooted at start looking for
// LineString elements at any depth, transparent to its curveMember wrapper.
func (g *geometryParser) collectLineStrings(start xml.StartElement, dim int) error {
	for {
		tok, err := g.dec.Token()
		if err != nil {
			return newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "LineString" {
				line, err := g.parseLineString(t, dim)
				if err != nil {
					return err
				}
				g.store.Lines.Append(line)
			} else if err := g.collectLineStrings(t, dim); err != nil {
				return err
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil
			}
		}
	}
}

func (g *geometryParser) parseLineString(start xml.StartElement, dim int) ([]uint32, error) {
	ring, err := g.parseRingFrom(start, dim)
	return []uint32(ring), err
}

func (g *geometryParser) parsePoint(start xml.StartElement) (citymodel.GeometryRef, error) {
	dim := srsDimension(start, 3)
	for {
		tok, err := g.dec.Token()
		if err != nil {
			return citymodel.GeometryRef{}, newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "pos" {
				text, err := readText(g.dec, t)
				if err != nil {
					return citymodel.GeometryRef{}, err
				}
				vals, err := parseFloats(text)
				if err != nil || len(vals) < 2 {
					return citymodel.GeometryRef{}, newErr(KindInvalidValue, "pos", errOddCoordinateCount)
				}
				h := 0.0
				if dim >= 3 && len(vals) >= 3 {
					h = vals[2]
				}
				idx := g.store.Points.Append(g.store.Vertices.Insert(citymodel.Vertex{vals[1], vals[0], h}))
				return citymodel.GeometryRef{Kind: citymodel.KindPoint, Start: idx, Length: 1}, nil
			}
			if err := skipSubtree(g.dec, t); err != nil {
				return citymodel.GeometryRef{}, err
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return citymodel.GeometryRef{}, newErr(KindInvalidValue, "Point", errOddCoordinateCount)
			}
		}
	}
}

func srsDimension(start xml.StartElement, def int) int {
	for _, a := range start.Attr {
		if a.Name.Local == "srsDimension" {
			if n, err := strconv.Atoi(a.Value); err == nil {
				return n
			}
		}
	}
	return def
}

func parseFloats(text string) ([]float64, error) {
	fields := strings.Fields(text)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// readText consumes CharData up to the matching End for start, returning
// the concatenated text.
func readText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return sb.String(), nil
			}
		}
	}
}

// skipSubtree discards everything up to and including the End matching
// start, without touching the store.
func skipSubtree(dec *xml.Decoder, start xml.StartElement) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return newErr(KindIO, start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 && t.Name.Local == start.Name.Local {
				return nil
			}
			depth--
		}
	}
}
