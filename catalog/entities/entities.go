package entities

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aoitools/s2prep/common"
	"github.com/go-spatial/geom/encoding/geojson"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
)

// Scene is a specialisation of common.Scene for the catalog
type Scene struct {
	common.Scene
	ProductName string            `json:"-"` // SourceID without the processing baseline and discriminator (to remove double entries)
	Tags        map[string]string `json:"tags,omitempty"`
	GeometryWKT string            `json:"wkt,omitempty"`
}

// AreaOfInterest is the input of the catalog
type AreaOfInterest struct {
	AOIID         string           `json:"aoi"`
	AOI           geojson.Geometry `json:"geometry"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	Level         common.Level     `json:"product_level"`
	MaxCloudCover float64          `json:"max_cloud_cover"` // percents, 100 disables the filter
	MaxScenes     int              `json:"max_scenes"`      // 0: unlimited
	Bands         []string         `json:"bands,omitempty"`
}

// AutoFill fills ProductName and the constellation/satellite/tile tags from the SourceID
func (s *Scene) AutoFill() {
	info, err := common.Info(s.SourceID)
	if err != nil {
		return
	}
	if s.Tags == nil {
		s.Tags = map[string]string{}
	}
	s.Tags[common.TagConstellation] = "SENTINEL2"
	s.Tags[common.TagSatellite] = "SENTINEL2" + s.SourceID[2:3]
	if tile, ok := info["TILE"]; ok {
		// Strip the processing baseline and the discriminator: both change on reprocessing
		s.ProductName = s.SourceID[0:27] + s.SourceID[33:44]
		s.Tags[common.TagTile] = tile
	} else {
		s.ProductName = s.SourceID
	}
}

// Scenes is a list of scenes with the properties of the search that produced
// them. It is (un)marshaled as a GeoJSON FeatureCollection whose feature
// geometries are taken from the scenes GeometryWKT.
type Scenes struct {
	Scenes     []*Scene
	Properties map[string]string
}

type sceneFeature struct {
	Type       string                 `json:"type"`
	ID         int                    `json:"id"`
	Geometry   *geojson.Geometry      `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type sceneFeatureCollection struct {
	Type       string            `json:"type"`
	Features   []sceneFeature    `json:"features"`
	Properties map[string]string `json:"properties,omitempty"`
}

// MarshalJSON implements the json.Marshaler interface
func (s Scenes) MarshalJSON() ([]byte, error) {
	fc := sceneFeatureCollection{Type: "FeatureCollection", Features: make([]sceneFeature, len(s.Scenes)), Properties: s.Properties}
	for i, scene := range s.Scenes {
		feature := sceneFeature{Type: "Feature", ID: i}
		if scene.GeometryWKT != "" {
			g, err := geomwkt.DecodeString(scene.GeometryWKT)
			if err != nil {
				return nil, fmt.Errorf("Scenes.MarshalJSON[%s]: %w", scene.SourceID, err)
			}
			feature.Geometry = &geojson.Geometry{Geometry: g}
		}
		properties, err := json.Marshal(scene)
		if err != nil {
			return nil, fmt.Errorf("Scenes.MarshalJSON[%s]: %w", scene.SourceID, err)
		}
		if err := json.Unmarshal(properties, &feature.Properties); err != nil {
			return nil, fmt.Errorf("Scenes.MarshalJSON[%s]: %w", scene.SourceID, err)
		}
		fc.Features[i] = feature
	}
	return json.Marshal(fc)
}

var csvHeader = []string{"id", "name", "start", "end", "collection", "cloud", "online", "size_bytes", "s3_path"}

// WriteCSV writes the inventory as a CSV, one product per line
func (s Scenes) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("Scenes.WriteCSV: %w", err)
	}
	for _, scene := range s.Scenes {
		record := []string{
			scene.Data.UUID,
			scene.SourceID + ".SAFE",
			formatCSVDate(scene.Data.Date),
			formatCSVDate(scene.Data.EndDate),
			"SENTINEL-2",
			formatCSVCloud(scene.Data.CloudCover),
			strconv.FormatBool(scene.Data.Online),
			formatCSVSize(scene.Data.Size),
			scene.Data.S3Path,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("Scenes.WriteCSV[%s]: %w", scene.SourceID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCSVDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatCSVCloud(cloudCover float64) string {
	if cloudCover < 0 {
		return ""
	}
	return strconv.FormatFloat(cloudCover, 'g', -1, 64)
}

func formatCSVSize(size int64) string {
	if size <= 0 {
		return ""
	}
	return strconv.FormatInt(size, 10)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// The feature geometry is ignored: the wkt property is authoritative.
func (s *Scenes) UnmarshalJSON(data []byte) error {
	fc := struct {
		Features []struct {
			Properties json.RawMessage `json:"properties"`
		} `json:"features"`
		Properties map[string]string `json:"properties"`
	}{}
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("Scenes.UnmarshalJSON: %w", err)
	}
	s.Scenes = make([]*Scene, len(fc.Features))
	s.Properties = fc.Properties
	for i, feature := range fc.Features {
		scene := &Scene{}
		if err := json.Unmarshal(feature.Properties, scene); err != nil {
			return fmt.Errorf("Scenes.UnmarshalJSON: %w", err)
		}
		s.Scenes[i] = scene
	}
	return nil
}
