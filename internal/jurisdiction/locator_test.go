package jurisdiction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY}, {X: minX, Y: maxY}, {X: maxX, Y: maxY}, {X: maxX, Y: minY}, {X: minX, Y: minY},
	}
}

// writeCounties creates a two-county shapefile; the second county has a hole.
func writeCounties(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "counties.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAMELSAD", 60)}))

	lucie := (*shp.Polygon)(shp.NewPolyLine([][]shp.Point{square(-80.7, 27.2, -80.2, 27.6)}))
	martin := (*shp.Polygon)(shp.NewPolyLine([][]shp.Point{
		square(-80.7, 26.9, -80.1, 27.2),
		square(-80.5, 27.0, -80.4, 27.1),
	}))

	n := w.Write(lucie)
	require.NoError(t, w.WriteAttribute(int(n), 0, "St. Lucie County"))
	n = w.Write(martin)
	require.NoError(t, w.WriteAttribute(int(n), 0, "Martin County"))
	w.Close()

	return dir
}

func TestLocate(t *testing.T) {
	l, err := Load(writeCounties(t), "")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())

	name, ok := l.Locate(27.45, -80.33)
	require.True(t, ok)
	assert.Equal(t, "St. Lucie County", name)

	name, ok = l.Locate(26.95, -80.2)
	require.True(t, ok)
	assert.Equal(t, "Martin County", name)

	_, ok = l.Locate(27.05, -80.45)
	assert.False(t, ok, "point inside the hole")

	_, ok = l.Locate(25.77, -80.19)
	assert.False(t, ok, "Miami is not loaded")
}

func TestLoad_MissingField(t *testing.T) {
	_, err := Load(writeCounties(t), "COUNTYFP")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COUNTYFP")
}

func TestLoad_NoShapefile(t *testing.T) {
	_, err := Load(t.TempDir(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .shp file")
}

func TestLocate_NilLocator(t *testing.T) {
	var l *Locator
	_, ok := l.Locate(27, -80)
	assert.False(t, ok)
}

func TestLoad_TruncatedShapefile(t *testing.T) {
	dir := writeCounties(t)
	path := filepath.Join(dir, "counties.shp")
	info, err := os.Stat(path)
	require.NoError(t, err)
	// Cut into the point list of the last polygon.
	require.NoError(t, os.Truncate(path, info.Size()-20))

	_, err = Load(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read shapefile")
}
