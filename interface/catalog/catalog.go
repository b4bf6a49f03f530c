package catalog

import (
	"context"

	"github.com/aoitools/s2prep/catalog/entities"
	"github.com/paulsmith/gogeos/geos"
)

// ScenesProvider searches a catalog for the scenes acquired over an area of interest
type ScenesProvider interface {
	SearchScenes(ctx context.Context, area *entities.AreaOfInterest, aoi *geos.Geometry) (entities.Scenes, error)
}
