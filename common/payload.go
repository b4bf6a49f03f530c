package common

import (
	"time"
)

const (
	ResultTypeScene = "scene"
	ResultTypeBand  = "band"
)

// SceneAttrs carries the catalog metadata of a scene needed to fetch and prepare it
type SceneAttrs struct {
	UUID         string    `json:"uuid"`
	Date         time.Time `json:"date"`
	EndDate      time.Time `json:"end_date"`
	ProductLevel Level     `json:"product_level"`
	CloudCover   float64   `json:"cloud_cover"`
	Online       bool      `json:"online"`
	Size         int64     `json:"size_bytes,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
	S3Path       string    `json:"s3_path,omitempty"`
	DownloadURL  string    `json:"download_url,omitempty"`
}

// Scene is one Sentinel-2 acquisition to fetch and prepare
type Scene struct {
	SourceID string     `json:"source_id"` // Product identifier (without .SAFE)
	AOI      string     `json:"aoi"`       // Name of the area of interest
	Data     SceneAttrs `json:"data,omitempty"`
}

// Result reports the outcome of processing one scene or one band
type Result struct {
	Type     string `json:"type"` // scene (ResultTypeScene) or band (ResultTypeBand)
	SourceID string `json:"source_id"`
	Band     string `json:"band,omitempty"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
}

// SceneResult is a shortcut to build a scene Result
func SceneResult(sourceID string, status Status, message string) Result {
	return Result{Type: ResultTypeScene, SourceID: sourceID, Status: status, Message: message}
}

// BandResult is a shortcut to build a band Result
func BandResult(sourceID, band string, status Status, message string) Result {
	return Result{Type: ResultTypeBand, SourceID: sourceID, Band: band, Status: status, Message: message}
}
