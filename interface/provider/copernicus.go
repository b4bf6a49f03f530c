package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/interface/shared"
	"github.com/cavaliercoder/grab"
)

const copernicusDownloadProduct = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products(%s)/$value"

// CopernicusImageProvider implements ImageProvider for the Copernicus Dataspace
type CopernicusImageProvider struct {
	tokens shared.TokenManager
	client *grab.Client
}

// NewCopernicusImageProvider creates a new ImageProvider from the Copernicus Dataspace
func NewCopernicusImageProvider(user, pword string) *CopernicusImageProvider {
	ip := &CopernicusImageProvider{tokens: shared.NewCopernicusTokenManager(user, pword)}
	ip.client = grab.NewClient()
	ip.client.HTTPClient = &http.Client{Transport: shared.NewTokenTransport(http.DefaultTransport, ip.tokens)}
	return ip
}

// Name implements ImageProvider
func (ip *CopernicusImageProvider) Name() string {
	return "Copernicus"
}

// Download implements ImageProvider
func (ip *CopernicusImageProvider) Download(ctx context.Context, scene common.Scene, localDir string) error {
	sceneName := scene.SourceID
	if !common.IsSentinel2(sceneName) {
		return fmt.Errorf("CopernicusImageProvider: not a Sentinel2 product: %s", sceneName)
	}
	if scene.Data.UUID == "" {
		return fmt.Errorf("CopernicusImageProvider: uuid is not defined for %s", sceneName)
	}

	url := fmt.Sprintf(copernicusDownloadProduct, scene.Data.UUID)

	// The token may have been revoked server-side: renew it once
	var err error
	for i := 0; i < 2; i++ {
		if err = downloadZip(ctx, ip.client, url, localDir, sceneName, ip.Name()); err == nil {
			return nil
		}
		var unauth ErrUnauthorized
		if !errors.As(err, &unauth) {
			break
		}
		ip.tokens.Reset()
	}
	return fmt.Errorf("CopernicusImageProvider.%w", err)
}
