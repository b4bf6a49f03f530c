package catalog

import (
	"context"
	"fmt"
	"regexp"
	"runtime"

	"github.com/aoitools/s2prep/catalog/entities"
	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/geometry"
	"github.com/aoitools/s2prep/service/log"
)

// Available catalogs, tried in the configured order
const (
	ProviderCopernicus = "copernicus"
	ProviderOpenSearch = "opensearch"
)

// Catalog searches the configured providers for the Sentinel-2 products
// covering an area of interest
type Catalog struct {
	Providers  []string // catalog order (see ProviderCopernicus, ProviderOpenSearch)
	WorkingDir string   // if set, intermediate inventories are persisted there
}

// ValidateArea checks the searchable fields of the area.
// The errors are input errors: they must be fixed by the caller.
func (c *Catalog) ValidateArea(area *entities.AreaOfInterest) error {
	// Check AOI ID
	matched, err := regexp.MatchString("^[a-zA-Z0-9-:_]+([a-zA-Z0-9-:_]+)*$", area.AOIID)
	if err != nil {
		return fmt.Errorf("ValidateArea.AOI: %w", err)
	}
	if !matched {
		return fmt.Errorf("ValidateArea: wrong format for AOI (must be chars, numbers and -:_): %s", area.AOIID)
	}

	// Check processing level
	if area.Level.ProductType() == "" {
		return fmt.Errorf("ValidateArea: unsupported processing level: %s", area.Level)
	}

	// Check interval of time
	if !area.StartTime.IsZero() && !area.EndTime.IsZero() && area.EndTime.Before(area.StartTime) {
		return fmt.Errorf("ValidateArea: end of the interval (%v) is before its start (%v)", area.EndTime, area.StartTime)
	}

	// Check cloud cover
	if area.MaxCloudCover < 0 || area.MaxCloudCover > 100 {
		return fmt.Errorf("ValidateArea: max_cloud_cover must be a percentage within [0, 100]: %g", area.MaxCloudCover)
	}

	// Check bands
	for _, band := range area.Bands {
		if _, err := common.NormalizeBand(band); err != nil {
			return fmt.Errorf("ValidateArea: %w", err)
		}
	}

	// Check geometry
	if area.AOI.Geometry == nil {
		return fmt.Errorf("ValidateArea: missing geometry")
	}
	aoi, err := geometry.GeomToGeos(area.AOI.Geometry)
	if err != nil {
		return fmt.Errorf("ValidateArea.%w", err)
	}
	valid, err := aoi.IsValid()
	if err != nil {
		return fmt.Errorf("ValidateArea.IsValid: %w", err)
	}
	if !valid {
		return fmt.Errorf("ValidateArea: invalid geometry")
	}
	runtime.KeepAlive(aoi)

	return nil
}

// DoScenesInventory lists the scenes covering the area between StartTime and EndTime
func (c *Catalog) DoScenesInventory(ctx context.Context, area entities.AreaOfInterest) (entities.Scenes, error) {
	if err := c.ValidateArea(&area); err != nil {
		return entities.Scenes{}, fmt.Errorf("DoScenesInventory.%w", err)
	}

	// geos AOI
	aoi, err := geometry.GeomToGeos(area.AOI.Geometry)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("DoScenesInventory.%w", err)
	}

	// Search scenes covering this area
	log.Logger(ctx).Sugar().Debugf("Search scenes for AOI %s from %v to %v", area.AOIID, area.StartTime, area.EndTime)
	scenes, err := c.ScenesInventory(ctx, &area, aoi)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("DoScenesInventory.%w", err)
	}

	runtime.KeepAlive(aoi)

	if c.WorkingDir != "" {
		if err := service.ToJSON(scenes, c.WorkingDir, "inventory.json"); err != nil {
			log.Logger(ctx).Sugar().Warnf("DoScenesInventory: %v", err)
		}
	}

	return scenes, nil
}
