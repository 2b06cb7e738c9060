// Package jurisdiction maps coordinates to county names using a TIGER-style
// county boundary shapefile.
package jurisdiction

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// DefaultNameField is the TIGER attribute holding "St. Lucie County" style names.
const DefaultNameField = "NAMELSAD"

type county struct {
	name   string
	bounds *geom.Bounds
	rings  [][]float64
}

// Locator answers point-in-county queries from boundaries held in memory.
// It is immutable after loading.
type Locator struct {
	counties []county
}

// Len returns the number of loaded boundaries.
func (l *Locator) Len() int { return len(l.counties) }

// Locate returns the county containing lat/lng.
func (l *Locator) Locate(lat, lng float64) (string, bool) {
	if l == nil {
		return "", false
	}
	pt := geom.Coord{lng, lat}
	for _, c := range l.counties {
		if !c.bounds.OverlapsPoint(geom.XY, pt) {
			continue
		}
		// Even-odd over all parts handles holes and multi-part counties.
		inside := false
		for _, ring := range c.rings {
			if xy.IsPointInRing(geom.XY, pt, ring) {
				inside = !inside
			}
		}
		if inside {
			return c.name, true
		}
	}
	return "", false
}

// Load reads county polygons from a .shp file, or from the first .shp found in
// a directory. nameField selects the attribute used as the county name.
func Load(path, nameField string) (*Locator, error) {
	if nameField == "" {
		nameField = DefaultNameField
	}
	shpPath, err := resolveShapefile(path)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "jurisdiction: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, nameField)
	if nameIdx < 0 {
		return nil, eris.Errorf("jurisdiction: field %s not found in %s", nameField, shpPath)
	}

	l := &Locator{}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly.NumParts == 0 {
			skipped++
			continue
		}
		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		if name == "" {
			skipped++
			continue
		}
		l.counties = append(l.counties, county{
			name:   name,
			bounds: geom.NewBounds(geom.XY).Set(poly.Box.MinX, poly.Box.MinY, poly.Box.MaxX, poly.Box.MaxY),
			rings:  polygonRings(poly),
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "jurisdiction: read shapefile %s", shpPath)
	}

	zap.L().Info("jurisdiction: loaded county boundaries",
		zap.String("path", shpPath),
		zap.Int("counties", len(l.counties)),
		zap.Int("skipped", skipped),
	)
	return l, nil
}

// polygonRings splits a shapefile polygon into flat XY rings.
func polygonRings(p *shp.Polygon) [][]float64 {
	rings := make([][]float64, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if len(flat) >= 6 {
			rings = append(rings, flat)
		}
	}
	return rings
}

func resolveShapefile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", eris.Wrapf(err, "jurisdiction: stat %s", path)
	}
	if !info.IsDir() {
		return path, nil
	}
	var found string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".shp") {
			found = p
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "jurisdiction: walk %s", path)
	}
	if found == "" {
		return "", eris.Errorf("jurisdiction: no .shp file found in %s", path)
	}
	return found, nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
