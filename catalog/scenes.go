package catalog

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/aoitools/s2prep/catalog/entities"
	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/interface/catalog"
	"github.com/aoitools/s2prep/interface/catalog/copernicus"
	"github.com/aoitools/s2prep/interface/catalog/opensearch"
	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/geometry"
	"github.com/aoitools/s2prep/service/log"
	"github.com/paulsmith/gogeos/geos"
)

// ScenesInventory makes an inventory of all the scenes covering the area between StartTime and EndTime
// The catalogs are queried in the configured order until one of them answers
func (c *Catalog) ScenesInventory(ctx context.Context, area *entities.AreaOfInterest, aoi *geos.Geometry) (entities.Scenes, error) {
	// Search
	var sceneProviders []catalog.ScenesProvider
	providers := c.Providers
	if len(providers) == 0 {
		providers = []string{ProviderCopernicus, ProviderOpenSearch}
	}
	for _, provider := range providers {
		switch provider {
		case ProviderCopernicus:
			sceneProviders = append(sceneProviders, &copernicus.Provider{})
		case ProviderOpenSearch:
			sceneProviders = append(sceneProviders, &opensearch.Provider{})
		default:
			return entities.Scenes{}, fmt.Errorf("ScenesInventory: unknown catalog: %s", provider)
		}
	}

	// Catalogs are queried with the dissolved AOI: the precise footprint
	// filtering happens in the refinement step
	searchAOI, err := geometry.Union([]*geos.Geometry{aoi}, geometry.TOLERANCE_GEOG)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("ScenesInventory.%w", err)
	}

	var e error
	var scenes entities.Scenes
	for _, sceneProvider := range sceneProviders {
		scenes, e = sceneProvider.SearchScenes(ctx, area, searchAOI)
		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
	}
	runtime.KeepAlive(searchAOI)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("ScenesInventory.%w", err)
	}

	// Refine inventory
	scenes.Scenes, err = refineInventory(area, scenes.Scenes, aoi)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("ScenesInventory.%w", err)
	}

	log.Logger(ctx).Sugar().Debugf("%d scenes found", len(scenes.Scenes))

	return scenes, nil
}

func refineInventory(area *entities.AreaOfInterest, scenes []*entities.Scene, aoi *geos.Geometry) ([]*entities.Scene, error) {
	var err error
	scenes = removeDoubleEntries(scenes)
	if scenes, err = removeOutsideAOI(scenes, aoi); err != nil {
		return nil, fmt.Errorf("refineInventory.%w", err)
	}
	sortByDate(scenes)
	if area.MaxScenes > 0 && len(scenes) > area.MaxScenes {
		scenes = scenes[0:area.MaxScenes]
	}
	return scenes, nil
}

// removeDoubleEntries removes acquisitions that appear twice in the inventory
// A reprocessed product keeps its datatake but gets a new processing baseline and generation time.
// When searching for data, both products will be found, even though they are the same acquisition.
// This routine checks of such appearance and selects the latest product.
// Credit: OpenSarToolkit
func removeDoubleEntries(scenes []*entities.Scene) []*entities.Scene {
	identifiers := map[string]int{}

	j := 0
	for _, scene := range scenes {
		if k, ok := identifiers[scene.ProductName]; !ok {
			scenes[j] = scene
			identifiers[scene.ProductName] = j
			j++
		} else if scenes[k].Tags[common.TagIngestionDate] < scene.Tags[common.TagIngestionDate] {
			scenes[k] = scene
		}
	}

	return scenes[0:j]
}

// removeOutsideAOI removes scenes that are located outside the AOI
// The search routine works over a simplified representation of the AOI.
// This may then include acquisitions that do not overlap with the AOI.
// In this step we sort out the scenes that are completely outside the actual AOI.
// Scenes without a footprint cannot be tested and are kept.
// Credit: OpenSarToolkit
func removeOutsideAOI(scenes []*entities.Scene, aoi *geos.Geometry) ([]*entities.Scene, error) {
	// Prepare geometry for intersection
	paoi := aoi.Prepare()

	j := 0
	for i, scene := range scenes {
		if scene.GeometryWKT == "" {
			scenes[j] = scenes[i]
			j++
			continue
		}
		aoiScene, err := geos.FromWKT(scene.GeometryWKT)
		if err != nil {
			return nil, fmt.Errorf("removeOutsideAOI.FromWKT: %w", err)
		}
		intersect, err := paoi.Intersects(aoiScene)
		if err != nil {
			return nil, fmt.Errorf("removeOutsideAOI.Intersects: %w", err)
		}
		if intersect {
			scenes[j] = scenes[i]
			j++
		}
	}
	runtime.KeepAlive(aoi)

	return scenes[0:j], nil
}

// sortByDate sorts the scenes by acquisition date, then by identifier, so that
// two inventories of the same area are comparable
func sortByDate(scenes []*entities.Scene) {
	sort.Slice(scenes, func(i, j int) bool {
		if !scenes[i].Data.Date.Equal(scenes[j].Data.Date) {
			return scenes[i].Data.Date.Before(scenes[j].Data.Date)
		}
		return scenes[i].SourceID < scenes[j].SourceID
	})
}
