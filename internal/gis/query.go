package gis

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// BuildWhere returns the ArcGIS where clause for a normalized address search.
func BuildWhere(field, normalized string) string {
	escaped := strings.ReplaceAll(normalized, "'", "''")
	return field + " LIKE '%" + escaped + "%'"
}

type esriSpatialReference struct {
	WKID int `json:"wkid"`
}

type esriPoint struct {
	X                float64              `json:"x"`
	Y                float64              `json:"y"`
	SpatialReference esriSpatialReference `json:"spatialReference"`
}

// pointGeometry encodes a WGS84 point as an Esri JSON geometry.
func pointGeometry(lat, lng float64) (string, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
	b, err := json.Marshal(esriPoint{
		X:                pt.X(),
		Y:                pt.Y(),
		SpatialReference: esriSpatialReference{WKID: pt.SRID()},
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// addressQuery builds the query string for an attribute search.
func (a *Adapter) addressQuery(normalized string) (url.Values, string) {
	where := BuildWhere(a.cfg.SearchField, normalized)
	q := a.baseQuery()
	q.Set("where", where)
	return q, where
}

// pointQuery builds the query string for a point-intersects search.
func (a *Adapter) pointQuery(lat, lng float64) (url.Values, string, error) {
	g, err := pointGeometry(lat, lng)
	if err != nil {
		return nil, "", err
	}
	q := a.baseQuery()
	q.Set("where", "1=1")
	q.Set("geometry", g)
	q.Set("geometryType", "esriGeometryPoint")
	q.Set("inSR", "4326")
	q.Set("spatialRel", "esriSpatialRelIntersects")
	return q, "point " + g, nil
}

func (a *Adapter) baseQuery() url.Values {
	q := url.Values{}
	q.Set("outFields", strings.Join(a.cfg.outFields(), ","))
	q.Set("returnGeometry", "false")
	q.Set("resultRecordCount", strconv.Itoa(a.settings.MaxCandidates))
	q.Set("f", "json")
	return q
}
