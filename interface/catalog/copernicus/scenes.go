package copernicus

import (
	"context"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"

	"github.com/aoitools/s2prep/catalog/entities"
	"github.com/aoitools/s2prep/service"

	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service/log"
)

const (
	CopernicusPageLimit     = 1000
	CopernicusODataQueryURL = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products?$filter="
)

// Provider queries the Copernicus Dataspace OData catalog for Sentinel-2
// scenes. Zero value targets the production endpoint.
type Provider struct {
	URL   string
	Limit int
}

func (s *Provider) SearchScenes(ctx context.Context, area *entities.AreaOfInterest, aoi *geos.Geometry) (entities.Scenes, error) {
	if s.URL == "" {
		s.URL = CopernicusODataQueryURL
	}
	if s.Limit == 0 {
		s.Limit = CopernicusPageLimit
	}

	productType := area.Level.ProductType()
	if productType == "" {
		return entities.Scenes{}, fmt.Errorf("Copernicus: processing level not supported: %s", area.Level)
	}

	// Create query
	parameters := []string{
		"Collection/Name eq 'SENTINEL-2'",
		fmt.Sprintf("Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'productType' and att/OData.CSC.StringAttribute/Value eq '%s')", productType),
	}
	{
		aoiWKT, err := aoi.ToWKT()
		if err != nil {
			return entities.Scenes{}, fmt.Errorf("Copernicus.searchScenes.ToWKT: %w", err)
		}

		parameters = append(parameters, "OData.CSC.Intersects(area=geography'SRID=4326;"+aoiWKT+"')")
	}

	// Append time
	if !area.StartTime.IsZero() {
		parameters = append(parameters, fmt.Sprintf("ContentDate/Start ge %s", area.StartTime.UTC().Format("2006-01-02T15:04:05.000Z")))
	}
	if !area.EndTime.IsZero() {
		parameters = append(parameters, fmt.Sprintf("ContentDate/Start le %s", area.EndTime.UTC().Format("2006-01-02T15:04:05.000Z")))
	}

	if area.MaxCloudCover > 0 && area.MaxCloudCover < 100 {
		parameters = append(parameters, fmt.Sprintf("Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value le %.2f)", area.MaxCloudCover))
	}
	query := strings.Join(parameters, " and ")

	limit := area.MaxScenes
	if limit <= 0 {
		limit = 10 * CopernicusPageLimit
	}

	// Execute query
	rawscenes, err := s.queryCopernicus(ctx, s.URL, query, 0, limit)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("Copernicus.searchScenes.%w", err)
	}

	// Parse results
	scenes := make([]*entities.Scene, len(rawscenes))
	for i, rawscene := range rawscenes {
		if _, ok := rawscene.AttributesMap["productType"]; !ok {
			return entities.Scenes{}, fmt.Errorf("Copernicus.searchScenes: Missing attribute productType in results")
		}

		// Parse dates
		date, err := time.Parse(time.RFC3339Nano, rawscene.ContentDate.BeginPosition)
		if err != nil {
			return entities.Scenes{}, fmt.Errorf("Copernicus.searchScenes.TimeParse: %w", err)
		}
		var endDate time.Time
		if rawscene.ContentDate.EndPosition != "" {
			if endDate, err = time.Parse(time.RFC3339Nano, rawscene.ContentDate.EndPosition); err != nil {
				return entities.Scenes{}, fmt.Errorf("Copernicus.searchScenes.TimeParse: %w", err)
			}
		}
		sourceID := strings.TrimSuffix(rawscene.Identifier, ".SAFE")

		cloudCover := -1.0
		if v, ok := rawscene.AttributesMap["cloudCover"]; ok {
			if cloudCover, err = strconv.ParseFloat(v, 64); err != nil {
				return entities.Scenes{}, fmt.Errorf("Copernicus.searchScenes.ParseFloat(%s): %w", v, err)
			}
		}

		level := area.Level
		if l, err := common.ParseLevel(rawscene.AttributesMap["productType"]); err == nil {
			level = l
		}

		var checksum string
		for _, c := range rawscene.Checksum {
			if c.Value != "" {
				checksum = strings.ToLower(c.Algorithm) + ":" + c.Value
				break
			}
		}

		ingestionDate := rawscene.PublicationDate
		if ingestionDate == "" {
			ingestionDate = rawscene.ContentDate.BeginPosition
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
					CloudCover:   cloudCover,
					Online:       rawscene.Online,
					Size:         rawscene.ContentLength,
					Checksum:     checksum,
					S3Path:       rawscene.S3Path,
				},
			},
			Tags: map[string]string{
				common.TagSourceID:      sourceID,
				common.TagUUID:          rawscene.Uuid,
				common.TagIngestionDate: ingestionDate,
				common.TagProductType:   rawscene.AttributesMap["productType"],
			},
			GeometryWKT: wkt.MustEncode(rawscene.Footprint.Geometry),
		}

		// Autofill some fields
		scenes[i].AutoFill()

		// Optional tags
		if v, ok := rawscene.AttributesMap["orbitDirection"]; ok {
			scenes[i].Tags[common.TagOrbitDirection] = v
		}
		if v, ok := rawscene.AttributesMap["relativeOrbitNumber"]; ok {
			scenes[i].Tags[common.TagRelativeOrbit] = v
		}
		if v, ok := rawscene.AttributesMap["orbitNumber"]; ok {
			scenes[i].Tags[common.TagOrbit] = v
		}
		if cloudCover >= 0 {
			scenes[i].Tags[common.TagCloudCoverPercentage] = rawscene.AttributesMap["cloudCover"]
		}
	}

	return entities.Scenes{
		Scenes:     scenes,
		Properties: nil,
	}, nil
}

type Hits struct {
	Uuid            string `json:"Id"`
	Identifier      string `json:"Name"`
	Online          bool   `json:"Online"`
	ContentLength   int64  `json:"ContentLength"`
	PublicationDate string `json:"PublicationDate"`
	S3Path          string `json:"S3Path"`
	Checksum        []struct {
		Value     string `json:"Value"`
		Algorithm string `json:"Algorithm"`
	} `json:"Checksum"`
	Footprint   geojson.Geometry `json:"GeoFootprint"`
	ContentDate struct {
		BeginPosition string `json:"Start"`
		EndPosition   string `json:"End"`
	} `json:"ContentDate"`
	Attributes []struct {
		Name      string      `json:"Name"`
		Value     interface{} `json:"Value"`
		ValueType string      `json:"ValueType"`
	} `json:"Attributes"`
	AttributesMap map[string]string
}

func (s *Provider) queryCopernicus(ctx context.Context, baseurl, query string, page, limit int) ([]Hits, error) {
	// Pagging
	var rawscenes []Hits
	query = neturl.QueryEscape(query)
	totalPages, count := "?", false // count is false: it takes too much time... It can be set to true for debugging purpose

	for _, queryParams := range service.ComputePagesToQuery(page, limit, s.Limit) {
		log.Logger(ctx).Sugar().Debugf("[Copernicus] Search page %d/%s", queryParams.Page+1, totalPages)
		// Load results
		url := baseurl + query + fmt.Sprintf("&$orderby=ContentDate/Start&$top=%d&$skip=%d&$expand=Attributes", queryParams.Limit, queryParams.Limit*queryParams.Page)
		if count {
			url += "&$count=True"
		}
		jsonResults, err := service.GetBodyRetry(url, 3)
		if err != nil {
			return nil, fmt.Errorf("queryCopernicus: %w", err)
		}

		//JSON
		results := struct {
			Status int    `json:"status"`
			Next   string `json:"@odata.nextLink"`
			Count  int    `json:"@odata.count"`
			Hits   []Hits `json:"value"`
		}{}

		// Read results to retrieve scenes
		if err := json.Unmarshal(jsonResults, &results); err != nil {
			return nil, fmt.Errorf("query.Unmarshal : %w (response: %s)", err, jsonResults)
		}

		if results.Status != 0 && results.Status != 200 {
			return nil, fmt.Errorf("query: http status: %d (response: %s)", results.Status, jsonResults)
		}

		results.Hits = service.QueryGetResult(&queryParams, results.Hits)

		for i, hit := range results.Hits {
			results.Hits[i].AttributesMap = map[string]string{}
			for _, elem := range hit.Attributes {
				switch e := elem.Value.(type) {
				default:
					results.Hits[i].AttributesMap[elem.Name] = fmt.Sprintf("%v", e)
				}
			}
			results.Hits[i].Attributes = nil
		}

		// Merge the results
		rawscenes = append(rawscenes, results.Hits...)

		// Is there a next page ?
		if results.Next == "" || len(rawscenes) == limit {
			break
		}
		if results.Count > 0 {
			totalPages = strconv.Itoa((results.Count-1)/queryParams.Limit + 1)
			count = false
		}
	}

	return rawscenes, nil
}
