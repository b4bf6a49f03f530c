package common

// Scene tags set by the catalog providers
const (
	TagSourceID             = "sourceID"
	TagUUID                 = "uuid"
	TagIngestionDate        = "ingestionDate"
	TagConstellation        = "constellation"
	TagSatellite            = "satellite"
	TagOrbitDirection       = "orbitDirection"
	TagRelativeOrbit        = "relativeOrbit"
	TagOrbit                = "orbit"
	TagProductType          = "productType"
	TagDownloadURL          = "downloadURL"
	TagCloudCoverPercentage = "cloudCoverPercentage"
	TagTile                 = "tile"
	TagProcessingDate       = "processingDate"
)
