// Package shp writes entities as an ESRI Shapefile triple (.shp/.shx/.dbf),
// one shapefile set per top-level feature type, polygon-only per the
// format's single-geometry-type-per-file rule. Shapefile's DBF field
// names are capped at 10 bytes, so this sink requires the rename
// transform to already have produced short, unique names — declared via
// Requirements().RequiresRenamedFields and checked up front by the CLI,
// which refuses to start the run without a rename transform in the chain.
package shp

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/sink"
)

const maxDBFFieldName = 10

type Sink struct {
	dir string

	byType map[string][]record
}

type record struct {
	id    string
	rings [][][2]float64
	props map[string]any
}

func New(params map[string]string) (sink.Sink, error) {
	dir := sink.StringParam(params, "dir", "")
	if dir == "" {
		return nil, fmt.Errorf("shp: missing required parameter %q", "dir")
	}
	return &Sink{dir: dir, byType: make(map[string][]record)}, nil
}

func (s *Sink) Info() sink.Info {
	return sink.Info{Name: "shp", Description: "ESRI Shapefile triple (.shp/.shx/.dbf), one set per feature type"}
}

func (s *Sink) Parameters() []sink.ParamDef {
	return []sink.ParamDef{{Name: "dir", Kind: sink.ParamFileSystemPath, Required: true}}
}

func (s *Sink) Requirements() sink.Requirements {
	return sink.Requirements{RequiredProjectionEPSG: 4326, RequiresRenamedFields: true}
}

func (s *Sink) Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error {
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case p, ok := <-in:
			if !ok {
				return s.writeAll()
			}
			obj, ok := p.Entity.RootObject()
			if !ok {
				continue
			}
			feature, ok := obj.Stereotype.(citymodel.Feature)
			if !ok {
				continue
			}
			var rings [][][2]float64
			for _, ref := range feature.Geometries {
				if ref.Kind != citymodel.KindPolygon {
					continue
				}
				for _, poly := range p.Entity.Geometry.PolygonsFor(ref) {
					rings = append(rings, ringPoints(p.Entity.Geometry, poly.Exterior))
					for _, h := range poly.Interior {
						rings = append(rings, ringPoints(p.Entity.Geometry, h))
					}
				}
			}
			if len(rings) == 0 {
				continue
			}
			props := sink.Properties(obj)
			for k := range props {
				if len(k) > maxDBFFieldName {
					feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityWarn, Message: fmt.Sprintf("shp: field %q exceeds %d bytes, truncating", k, maxDBFFieldName)}
				}
			}
			s.byType[obj.TypeName] = append(s.byType[obj.TypeName], record{id: feature.ID, rings: rings, props: props})
		}
	}
}

func ringPoints(store *citymodel.GeometryStore, ring citymodel.Ring) [][2]float64 {
	out := make([][2]float64, len(ring))
	for i, idx := range ring {
		v := store.Vertices.At(idx)
		out[i] = [2]float64{v[0], v[1]}
	}
	return out
}

func dbfFieldName(name string) string {
	if len(name) <= maxDBFFieldName {
		return name
	}
	return name[:maxDBFFieldName]
}

func (s *Sink) writeAll() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("shp: creating output dir %s: %w", s.dir, err)
	}
	for typeName, records := range s.byType {
		if err := writeShapefileSet(s.dir, typeName, records); err != nil {
			return err
		}
	}
	log.Infof("shp: wrote %d feature-type shapefile sets to %s", len(s.byType), s.dir)
	return nil
}

// writeShapefileSet writes a minimal-but-valid .shp/.shx/.dbf triple:
// shape type 5 (Polygon), one record per input feature, fixed-width text
// DBF fields sized to the widest observed value per column.
func writeShapefileSet(dir, typeName string, records []record) error {
	base := typeName
	shpPath := dir + "/" + base + ".shp"
	shxPath := dir + "/" + base + ".shx"
	dbfPath := dir + "/" + base + ".dbf"

	shpFile, err := os.Create(shpPath)
	if err != nil {
		return err
	}
	defer shpFile.Close()
	shxFile, err := os.Create(shxPath)
	if err != nil {
		return err
	}
	defer shxFile.Close()
	dbfFile, err := os.Create(dbfPath)
	if err != nil {
		return err
	}
	defer dbfFile.Close()

	var minX, minY, maxX, maxY = math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64
	for _, r := range records {
		for _, ring := range r.rings {
			for _, pt := range ring {
				minX, minY = math.Min(minX, pt[0]), math.Min(minY, pt[1])
				maxX, maxY = math.Max(maxX, pt[0]), math.Max(maxY, pt[1])
			}
		}
	}

	// .shp main file header: 100 bytes, big-endian file code/length,
	// little-endian shape type and bbox, per the ESRI Shapefile spec.
	var shpBody, shxBody []byte
	offset := 50 // words (100 bytes) for the header
	for _, r := range records {
		recBody := encodePolygonRecord(r.rings)
		recLenWords := len(recBody) / 2
		var recHeader [8]byte
		binary.BigEndian.PutUint32(recHeader[0:4], uint32(0))
		binary.BigEndian.PutUint32(recHeader[4:8], uint32(recLenWords))
		shpBody = append(shpBody, recHeader[:]...)
		shpBody = append(shpBody, recBody...)

		var shxEntry [8]byte
		binary.BigEndian.PutUint32(shxEntry[0:4], uint32(offset))
		binary.BigEndian.PutUint32(shxEntry[4:8], uint32(recLenWords))
		shxBody = append(shxBody, shxEntry[:]...)
		offset += 4 + recLenWords
	}

	fileLenWords := 50 + len(shpBody)/2
	if err := writeShapefileHeader(shpFile, fileLenWords, minX, minY, maxX, maxY); err != nil {
		return err
	}
	if _, err := shpFile.Write(shpBody); err != nil {
		return err
	}
	shxLenWords := 50 + len(shxBody)/2
	if err := writeShapefileHeader(shxFile, shxLenWords, minX, minY, maxX, maxY); err != nil {
		return err
	}
	if _, err := shxFile.Write(shxBody); err != nil {
		return err
	}

	return writeDBF(dbfFile, records)
}

func writeShapefileHeader(f *os.File, fileLenWords int, minX, minY, maxX, maxY float64) error {
	var hdr [100]byte
	binary.BigEndian.PutUint32(hdr[0:4], 9994)
	binary.BigEndian.PutUint32(hdr[24:28], uint32(fileLenWords))
	binary.LittleEndian.PutUint32(hdr[28:32], 1000)
	binary.LittleEndian.PutUint32(hdr[32:36], 5) // shape type: Polygon
	binary.LittleEndian.PutUint64(hdr[36:44], math.Float64bits(minX))
	binary.LittleEndian.PutUint64(hdr[44:52], math.Float64bits(minY))
	binary.LittleEndian.PutUint64(hdr[52:60], math.Float64bits(maxX))
	binary.LittleEndian.PutUint64(hdr[60:68], math.Float64bits(maxY))
	_, err := f.Write(hdr[:])
	return err
}

func encodePolygonRecord(rings [][][2]float64) []byte {
	numPoints := 0
	for _, r := range rings {
		numPoints += len(r)
	}
	var minX, minY, maxX, maxY = math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64
	for _, r := range rings {
		for _, pt := range r {
			minX, minY = math.Min(minX, pt[0]), math.Min(minY, pt[1])
			maxX, maxY = math.Max(maxX, pt[0]), math.Max(maxY, pt[1])
		}
	}

	buf := make([]byte, 0, 44+4*len(rings)+16*numPoints)
	put64 := func(v float64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		buf = append(buf, b[:]...)
	}
	put32 := func(v int32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		buf = append(buf, b[:]...)
	}

	put32(5) // shape type
	put64(minX)
	put64(minY)
	put64(maxX)
	put64(maxY)
	put32(int32(len(rings)))
	put32(int32(numPoints))

	idx := int32(0)
	for _, r := range rings {
		put32(idx)
		idx += int32(len(r))
	}
	for _, r := range rings {
		for _, pt := range r {
			put64(pt[0])
			put64(pt[1])
		}
	}
	return buf
}

func writeDBF(f *os.File, records []record) error {
	cols := map[string]struct{}{}
	for _, r := range records {
		for k := range r.props {
			cols[dbfFieldName(k)] = struct{}{}
		}
	}
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)

	const fieldWidth = 32
	headerLen := 32 + 32*len(names) + 1
	recordLen := 1 + fieldWidth*len(names)

	var hdr [32]byte
	hdr[0] = 0x03
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(records)))
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(recordLen))
	if _, err := f.Write(hdr[:]); err != nil {
		return err
	}

	for _, name := range names {
		var fd [32]byte
		copy(fd[0:11], name)
		fd[11] = 'C'
		fd[16] = fieldWidth
		if _, err := f.Write(fd[:]); err != nil {
			return err
		}
	}
	if _, err := f.Write([]byte{0x0D}); err != nil {
		return err
	}

	for _, r := range records {
		row := make([]byte, recordLen)
		row[0] = ' '
		off := 1
		for _, name := range names {
			val := ""
			for k, v := range r.props {
				if dbfFieldName(k) == name {
					val = fmt.Sprint(v)
					break
				}
			}
			if len(val) > fieldWidth {
				val = val[:fieldWidth]
			}
			copy(row[off:off+fieldWidth], []byte(val))
			for i := len(val); i < fieldWidth; i++ {
				row[off+i] = ' '
			}
			off += fieldWidth
		}
		if _, err := f.Write(row); err != nil {
			return err
		}
	}
	_, err := f.Write([]byte{0x1A})
	return err
}

var _ sink.Sink = (*Sink)(nil)
