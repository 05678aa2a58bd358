// Package gpkg writes entities into a DuckDB database file, one table
// per top-level feature type, a geometry BLOB column (WKB) plus one
// column per scalar attribute — standing in for GeoPackage per §6 using
// DuckDB's own storage rather than pulling in a second, sqlite-backed
// dependency purely for its container format.
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	log "github.com/sirupsen/logrus"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/sink"
)

const outputEPSG = 4326

type Sink struct {
	path string
	db   *sql.DB

	// tables tracks which tables have already been created, and their
	// column sets, so a feature type seen again doesn't retry DDL.
	tables map[string][]string
}

func New(params map[string]string) (sink.Sink, error) {
	path := sink.StringParam(params, "path", "")
	if path == "" {
		return nil, fmt.Errorf("gpkg: missing required parameter %q", "path")
	}
	return &Sink{path: path, tables: make(map[string][]string)}, nil
}

func (s *Sink) Info() sink.Info {
	return sink.Info{Name: "gpkg", Description: "DuckDB-backed GeoPackage-style database, one table per feature type"}
}

func (s *Sink) Parameters() []sink.ParamDef {
	return []sink.ParamDef{
		{Name: "path", Kind: sink.ParamFileSystemPath, Required: true},
	}
}

func (s *Sink) Requirements() sink.Requirements {
	return sink.Requirements{RequiredProjectionEPSG: outputEPSG}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *Sink) Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error {
	db, err := sql.Open("duckdb", s.path)
	if err != nil {
		return fmt.Errorf("gpkg: opening %s: %w", s.path, err)
	}
	s.db = db
	defer db.Close()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case p, ok := <-in:
			if !ok {
				log.Infof("gpkg: wrote %d features to %s", count, s.path)
				return nil
			}
			obj, ok := p.Entity.RootObject()
			if !ok {
				continue
			}
			feature, ok := obj.Stereotype.(citymodel.Feature)
			if !ok {
				continue
			}
			if err := s.writeFeature(ctx, obj, feature, p.Entity.Geometry); err != nil {
				feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityWarn, Message: fmt.Sprintf("gpkg: dropping feature %s: %v", feature.ID, err)}
				continue
			}
			count++
		}
	}
}

func tableName(typeName string) string {
	if i := strings.IndexByte(typeName, ':'); i >= 0 {
		return typeName[i+1:]
	}
	return typeName
}

func (s *Sink) writeFeature(ctx context.Context, obj *citymodel.Object, feature citymodel.Feature, store *citymodel.GeometryStore) error {
	props := sink.Properties(obj)
	table := tableName(obj.TypeName)

	cols, ok := s.tables[table]
	if !ok {
		cols = s.scalarColumns(props)
		if err := s.createTable(ctx, table, cols); err != nil {
			return err
		}
		s.tables[table] = cols
	}

	var geomBytes []byte
	for _, ref := range feature.Geometries {
		if ref.Kind != citymodel.KindPolygon {
			continue
		}
		mp := sink.ToOrbMultiPolygon(store, ref)
		if len(mp) == 0 {
			continue
		}
		b, err := wkb.Marshal(mp)
		if err != nil {
			return fmt.Errorf("encoding geometry: %w", err)
		}
		geomBytes = b
		break
	}

	names := []string{"id", "geometry"}
	values := []any{feature.ID, geomBytes}
	for _, c := range cols {
		names = append(names, c)
		if v, ok := props[c]; ok {
			values = append(values, fmt.Sprint(v))
		} else {
			values = append(values, nil)
		}
	}

	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = "?"
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	_, err := s.db.ExecContext(ctx, stmt, values...)
	return err
}

func (s *Sink) scalarColumns(props map[string]any) []string {
	cols := make([]string, 0, len(props))
	for k := range props {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func (s *Sink) createTable(ctx context.Context, table string, cols []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (id VARCHAR PRIMARY KEY, geometry BLOB", quoteIdent(table))
	for _, c := range cols {
		fmt.Fprintf(&b, ", %s VARCHAR", quoteIdent(c))
	}
	b.WriteString(")")
	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	// Record the SRS every geometry column in this database is stored in,
	// mirroring GeoPackage's gpkg_spatial_ref_sys bookkeeping.
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("COMMENT ON COLUMN %s.geometry IS 'srid=%d'", quoteIdent(table), outputEPSG))
	if err != nil {
		log.Debugf("gpkg: could not tag SRS on %s.geometry: %v", table, err)
	}
	return nil
}

var _ sink.Sink = (*Sink)(nil)
