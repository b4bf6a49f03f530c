package common

import (
	"fmt"
	"strings"
)

// SpectralBands lists the Sentinel-2 MSI band labels (B10 is absent from L2A products)
var SpectralBands = []string{"B01", "B02", "B03", "B04", "B05", "B06", "B07", "B08", "B8A", "B09", "B10", "B11", "B12"}

// NormalizeBand maps the user spelling of a band to its canonical label (b2 -> B02, 8a -> B8A)
func NormalizeBand(input string) (string, error) {
	band := strings.ToUpper(strings.TrimSpace(input))
	band = strings.TrimPrefix(band, "B")
	if len(band) == 1 {
		band = "0" + band
	}
	band = "B" + band
	for _, b := range SpectralBands {
		if b == band {
			return b, nil
		}
	}
	return "", fmt.Errorf("NormalizeBand: unknown Sentinel2 band %q", input)
}

// ParseBands parses a comma-separated list of bands. Empty input means no
// selection: every band present in the product.
func ParseBands(input string) ([]string, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	var bands []string
	seen := map[string]bool{}
	for _, field := range strings.Split(input, ",") {
		band, err := NormalizeBand(field)
		if err != nil {
			return nil, err
		}
		if !seen[band] {
			seen[band] = true
			bands = append(bands, band)
		}
	}
	return bands, nil
}
