package geometry

import (
	"fmt"

	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// Simplification tolerance for search geometries (degrees)
var TOLERANCE_GEOG = 0.000001

// GeomToGeos converts a geom.Geometry into a geos.Geometry
func GeomToGeos(g geom.Geometry) (*geos.Geometry, error) {
	geometry, err := geos.FromWKT(geomwkt.MustEncode(g))
	if err != nil {
		return nil, fmt.Errorf("GeomToGeos.FromWKT: %w", err)
	}
	return geometry, nil
}

// GeosToGeom converts a geos.Geometry into a geom.Geometry
func GeosToGeom(g *geos.Geometry) (geom.Geometry, error) {
	wkt, err := g.ToWKT()
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.ToWKT: %w", err)
	}
	geometry, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.DecodeString: %w", err)
	}

	return geometry, nil
}

// Union dissolves the geometries into one, simplified with the given tolerance.
// Catalogs are queried with the result: it covers the precise AOI, in fewer
// vertices.
func Union(geoms []*geos.Geometry, tolerance float64) (*geos.Geometry, error) {
	aoi, err := UnaryUnion(geoms)
	if err == nil {
		if aoi, err = aoi.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		return aoi, nil
	}
	// Union all failed, retry one by one with simplify
	var union *geos.Geometry
	for _, g := range geoms {
		if g, err = g.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		if union == nil {
			union = g
			continue
		}
		if union, err = union.Union(g); err != nil {
			return nil, fmt.Errorf("Union: %w", err)
		}
	}
	return union, nil
}

// UnaryUnion dissolves the geometries, including the polygons of a multipolygon
func UnaryUnion(geoms []*geos.Geometry) (*geos.Geometry, error) {
	if len(geoms) == 1 {
		aoi, err := geoms[0].UnaryUnion()
		if err != nil {
			return nil, fmt.Errorf("UnaryUnion: %w", err)
		}
		return aoi, nil
	}
	aoi, err := geos.NewCollection(geos.MULTIPOLYGON, geoms...)
	if err != nil {
		return nil, fmt.Errorf("UnaryUnion.NewCollection: %w", err)
	}
	if aoi, err = aoi.UnaryUnion(); err != nil {
		return nil, fmt.Errorf("UnaryUnion.UnaryUnion: %w", err)
	}
	return aoi, nil
}
