package opensearch

// Opensearch specificiations https://github.com/dewitt/opensearch/blob/master/opensearch-1-1-draft-6.md

import (
	"context"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aoitools/s2prep/catalog/entities"
	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/log"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

const (
	PageLimit         = 1000
	Sentinel2QueryURL = "https://catalogue.dataspace.copernicus.eu/resto/api/collections/Sentinel2/search.json?"
)

type Hits struct {
	Uuid       string           `json:"id"`
	Footprint  geojson.Geometry `json:"geometry"`
	Properties struct {
		Identifier           string  `json:"title"`
		BeginPosition        string  `json:"startDate"`
		EndPosition          string  `json:"completionDate"`
		IngestionDate        string  `json:"published"`
		ProductType          string  `json:"productType"`
		ProductIdentifier    string  `json:"productIdentifier"`
		Status               string  `json:"status"`
		CloudCoverPercentage float64 `json:"cloudCover"`
		OrbitDirection       string  `json:"orbitDirection"`
		RelativeOrbitNumber  int     `json:"relativeOrbitNumber"`
		OrbitNumber          int     `json:"orbitNumber"`
		Services             struct {
			Download struct {
				Url  string `json:"url"`
				Size int64  `json:"size"`
			} `json:"download"`
		} `json:"services"`
	} `json:"properties"`
}

type Config struct {
	Provider string
	BaseUrl  string
}

// Provider queries an OpenSearch (resto) catalog for Sentinel-2 scenes.
// Zero value targets the Copernicus Dataspace resto endpoint.
type Provider struct {
	Name  string
	URL   string
	Limit int
}

func (p *Provider) SearchScenes(ctx context.Context, area *entities.AreaOfInterest, aoi *geos.Geometry) (entities.Scenes, error) {
	name, url, limit := p.Name, p.URL, p.Limit
	if name == "" {
		name = "OpenSearch"
	}
	if url == "" {
		url = Sentinel2QueryURL
	}
	if limit == 0 {
		limit = PageLimit
	}

	// Construct Query
	query, err := ConstructQuery(ctx, area, aoi)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("%s.%w", name, err)
	}

	maxScenes := area.MaxScenes
	if maxScenes <= 0 {
		maxScenes = 10 * limit
	}

	// Execute query
	rawscenes, err := Query(ctx, query, Config{Provider: name, BaseUrl: url}, 0, maxScenes, limit)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("%s.%w", name, err)
	}

	// Parse results
	scenes, err := Parse(area, rawscenes)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("%s.%w", name, err)
	}
	return scenes, nil
}

func ConstructQuery(ctx context.Context, area *entities.AreaOfInterest, aoi *geos.Geometry) (string, error) {
	productType := area.Level.ProductType()
	if productType == "" {
		return "", fmt.Errorf("OpenSearch: processing level not supported: %s", area.Level)
	}

	parameters := []string{fmt.Sprintf("productType=%s", productType)}
	if area.MaxCloudCover > 0 && area.MaxCloudCover < 100 {
		parameters = append(parameters, fmt.Sprintf("cloudCover=[0,%g]", area.MaxCloudCover))
	}

	// Append aoi
	{
		convexhull, err := aoi.ConvexHull()
		if err != nil {
			return "", fmt.Errorf("OpenSearch.ConvexHull: %w", err)
		}

		convexhullWKT, err := convexhull.ToWKT()
		if err != nil {
			return "", fmt.Errorf("OpenSearch.ToWKT: %w", err)
		}
		parameters = append(parameters, fmt.Sprintf("geometry=%s", neturl.QueryEscape(convexhullWKT)))
	}

	// Append time
	if !area.StartTime.IsZero() {
		parameters = append(parameters, fmt.Sprintf("startDate=%s", area.StartTime.UTC().Format("2006-01-02T15:04:05.000Z")))
	}
	if !area.EndTime.IsZero() {
		parameters = append(parameters, fmt.Sprintf("completionDate=%s", area.EndTime.UTC().Format("2006-01-02T15:04:05.000Z")))
	}

	return strings.Join(parameters, "&"), nil
}

func Query(ctx context.Context, query string, config Config, page, limit, catalogLimit int) ([]Hits, error) {
	var rawscenes []Hits
	totalPages := "?"

	for _, queryParams := range service.ComputePagesToQuery(page, limit, catalogLimit) {
		log.Logger(ctx).Sugar().Debugf("[%s] Search page %d/%s", config.Provider, queryParams.Page, totalPages)

		// Load results
		url := config.BaseUrl + query + fmt.Sprintf("&maxRecords=%d&page=%d", queryParams.Limit, queryParams.Page+1)
		jsonResults, err := service.GetBodyRetry(url, 3)
		if err != nil {
			return nil, fmt.Errorf("query.getBodyRetry: %w", err)
		}

		//JSON
		results := struct {
			Status     int `json:"status"`
			Properties struct {
				TotalResults int `json:"totalResults"`
				Links        []struct {
					Rel  string `json:"rel"`
					Href string `json:"href"`
				}
			} `json:"properties"`
			Hits []Hits `json:"features"`
		}{}

		// Read results to retrieve scenes
		if err := json.Unmarshal(jsonResults, &results); err != nil {
			return nil, fmt.Errorf("query.Unmarshal : %w (response: %s)", err, jsonResults)
		}

		if results.Status != 0 && results.Status != 200 {
			return nil, fmt.Errorf("query : http status %d (response: %s)", results.Status, jsonResults)
		}

		// Merge the results
		rawscenes = append(rawscenes, service.QueryGetResult(&queryParams, results.Hits)...)

		// Is there a next page ?
		nextPage := false
		for _, link := range results.Properties.Links {
			if strings.ToLower(link.Rel) == "next" && link.Href != "" {
				nextPage = true
			}
		}

		if !nextPage || len(rawscenes) == limit {
			break
		}
		totalPages = strconv.Itoa(results.Properties.TotalResults/queryParams.Limit + 1)
	}

	return rawscenes, nil
}

func Parse(area *entities.AreaOfInterest, hits []Hits) (entities.Scenes, error) {
	// Parse results
	scenes := make([]*entities.Scene, len(hits))
	for i, rawscene := range hits {
		// Parse dates
		date, err := time.Parse(time.RFC3339Nano, rawscene.Properties.BeginPosition)
		if err != nil {
			return entities.Scenes{}, fmt.Errorf("OpenSearch.parse.TimeParse: %w", err)
		}
		var endDate time.Time
		if rawscene.Properties.EndPosition != "" {
			if endDate, err = time.Parse(time.RFC3339Nano, rawscene.Properties.EndPosition); err != nil {
				return entities.Scenes{}, fmt.Errorf("OpenSearch.parse.TimeParse: %w", err)
			}
		}
		sourceID := strings.TrimSuffix(rawscene.Properties.Identifier, ".SAFE")

		level := area.Level
		if l, err := common.ParseLevel(rawscene.Properties.ProductType); err == nil {
			level = l
		}

		// Create scene
		scenes[i] = &entities.Scene{
			Scene: common.Scene{
				SourceID: sourceID,
				AOI:      area.AOIID,
				Data: common.SceneAttrs{
					UUID:         rawscene.Uuid,
					Date:         date,
					EndDate:      endDate,
					ProductLevel: level,
					CloudCover:   rawscene.Properties.CloudCoverPercentage,
					Online:       !strings.EqualFold(rawscene.Properties.Status, "OFFLINE"),
					Size:         rawscene.Properties.Services.Download.Size,
					S3Path:       rawscene.Properties.ProductIdentifier,
					DownloadURL:  rawscene.Properties.Services.Download.Url,
				},
			},
			Tags: map[string]string{
				common.TagSourceID:             sourceID,
				common.TagUUID:                 rawscene.Uuid,
				common.TagIngestionDate:        rawscene.Properties.IngestionDate,
				common.TagOrbitDirection:       rawscene.Properties.OrbitDirection,
				common.TagRelativeOrbit:        fmt.Sprintf("%d", rawscene.Properties.RelativeOrbitNumber),
				common.TagOrbit:                fmt.Sprintf("%d", rawscene.Properties.OrbitNumber),
				common.TagProductType:          rawscene.Properties.ProductType,
				common.TagCloudCoverPercentage: fmt.Sprintf("%g", rawscene.Properties.CloudCoverPercentage),
			},
			GeometryWKT: wkt.MustEncode(rawscene.Footprint.Geometry),
		}

		// Autofill some fields
		scenes[i].AutoFill()
	}

	return entities.Scenes{
		Scenes:     scenes,
		Properties: nil,
	}, nil
}
