// Package kml writes entities as a minimal but real KML document: one
// <Placemark> per feature, its geometry as <Polygon><outerBoundaryIs>,
// its scalar attributes as an <ExtendedData> block. KML's full styling,
// network-link, and time-span vocabulary is out of scope per §1 — this
// writer implements the structural subset the core pipeline drives.
package kml

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/sink"
)

type kmlData struct {
	XMLName xml.Name `xml:"kml"`
	XMLNS   string   `xml:"xmlns,attr"`
	Doc     kmlDoc   `xml:"Document"`
}

type kmlDoc struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name          string            `xml:"name"`
	ExtendedData  *kmlExtendedData  `xml:"ExtendedData,omitempty"`
	Polygon       *kmlPolygon       `xml:"Polygon,omitempty"`
}

type kmlExtendedData struct {
	Data []kmlDataEntry `xml:"Data"`
}

type kmlDataEntry struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlPolygon struct {
	Outer kmlBoundary  `xml:"outerBoundaryIs"`
	Inner []kmlBoundary `xml:"innerBoundaryIs,omitempty"`
}

type kmlBoundary struct {
	LinearRing kmlLinearRing `xml:"LinearRing"`
}

type kmlLinearRing struct {
	Coordinates string `xml:"coordinates"`
}

type Sink struct {
	path string
}

func New(params map[string]string) (sink.Sink, error) {
	path := sink.StringParam(params, "path", "")
	if path == "" {
		return nil, fmt.Errorf("kml: missing required parameter %q", "path")
	}
	return &Sink{path: path}, nil
}

func (s *Sink) Info() sink.Info {
	return sink.Info{Name: "kml", Description: "minimal KML placemark document"}
}

func (s *Sink) Parameters() []sink.ParamDef {
	return []sink.ParamDef{{Name: "path", Kind: sink.ParamFileSystemPath, Required: true}}
}

func (s *Sink) Requirements() sink.Requirements {
	return sink.Requirements{RequiredProjectionEPSG: 4326}
}

func ringCoordinates(store *citymodel.GeometryStore, ring citymodel.Ring) string {
	var b strings.Builder
	for i, idx := range ring {
		if i > 0 {
			b.WriteByte(' ')
		}
		v := store.Vertices.At(idx)
		b.WriteString(strconv.FormatFloat(v[0], 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v[1], 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v[2], 'f', -1, 64))
	}
	return b.String()
}

func (s *Sink) Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error {
	doc := kmlData{XMLNS: "http://www.opengis.net/kml/2.2"}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case p, ok := <-in:
			if !ok {
				return s.write(doc, count)
			}
			obj, ok := p.Entity.RootObject()
			if !ok {
				continue
			}
			feature, ok := obj.Stereotype.(citymodel.Feature)
			if !ok {
				continue
			}
			pm := kmlPlacemark{Name: feature.ID}

			props := sink.Properties(obj)
			if len(props) > 0 {
				ed := &kmlExtendedData{}
				for k, v := range props {
					ed.Data = append(ed.Data, kmlDataEntry{Name: k, Value: fmt.Sprint(v)})
				}
				pm.ExtendedData = ed
			}

			for _, ref := range feature.Geometries {
				if ref.Kind != citymodel.KindPolygon {
					continue
				}
				polys := p.Entity.Geometry.PolygonsFor(ref)
				if len(polys) == 0 {
					continue
				}
				poly := polys[0]
				kp := &kmlPolygon{Outer: kmlBoundary{LinearRing: kmlLinearRing{Coordinates: ringCoordinates(p.Entity.Geometry, poly.Exterior)}}}
				for _, hole := range poly.Interior {
					kp.Inner = append(kp.Inner, kmlBoundary{LinearRing: kmlLinearRing{Coordinates: ringCoordinates(p.Entity.Geometry, hole)}})
				}
				pm.Polygon = kp
				break
			}

			doc.Doc.Placemarks = append(doc.Doc.Placemarks, pm)
			count++
		}
	}
}

func (s *Sink) write(doc kmlData, count int) error {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("kml: marshaling %d placemarks: %w", count, err)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("kml: creating %s: %w", s.path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	if _, err := f.Write(out); err != nil {
		return err
	}
	log.Infof("kml: wrote %d placemarks to %s", count, s.path)
	return nil
}

var _ sink.Sink = (*Sink)(nil)
