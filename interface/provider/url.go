package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service"
	"github.com/cavaliercoder/grab"
)

// URLImageProvider implements ImageProvider for direct download link
type URLImageProvider struct {
	pattern string
	user    string
	pword   string
}

// Name implements ImageProvider
func (ip *URLImageProvider) Name() string {
	return "URL"
}

// NewURLImageProvider creates a new ImageProvider for direct download link
// pattern is used when the scene has no download url. It can contain several {IDENTIFIER} (see common.FormatBrackets)
func NewURLImageProvider(pattern, user, pword string) *URLImageProvider {
	return &URLImageProvider{pattern: pattern, user: user, pword: pword}
}

// Download implements ImageProvider
func (ip *URLImageProvider) Download(ctx context.Context, scene common.Scene, localDir string) error {
	sceneName := scene.SourceID

	downloadLink := scene.Data.DownloadURL
	if downloadLink == "" && ip.pattern != "" {
		format, err := common.Info(sceneName)
		if err != nil {
			return fmt.Errorf("URLImageProvider: %w", err)
		}
		downloadLink = common.FormatBrackets(ip.pattern, format)
	}
	if downloadLink == "" {
		return fmt.Errorf("URLImageProvider: no download link for %s", sceneName)
	}

	ext := service.GetExt(downloadLink)

	var localFile string
	switch {
	case strings.HasPrefix(downloadLink, "file://"):
		localFile = strings.TrimPrefix(downloadLink, "file://")
		if _, err := os.Stat(localFile); err != nil {
			if service.IsErrNotFound(err) {
				return ErrProductNotFound{downloadLink}
			}
			return fmt.Errorf("URLImageProvider: %w", err)
		}
	default:
		localFile = sceneFilePath(localDir, sceneName, ext)
		req, err := grab.NewRequest(localFile, downloadLink)
		if err != nil {
			return fmt.Errorf("URLImageProvider.NewRequest: %w", err)
		}
		req = req.WithContext(ctx)

		client := grab.NewClient()
		if ip.user != "" {
			req.HTTPRequest.SetBasicAuth(ip.user, ip.pword)
			client.HTTPClient.CheckRedirect = checkRedirectAndCopyAuth
		}
		if err := download(ctx, client, req, ip.Name()+":"+sceneName); err != nil {
			return fmt.Errorf("URLImageProvider.%w", err)
		}
		if ext == service.ExtensionZIP {
			defer os.Remove(localFile)
		}
	}
	if ext == service.ExtensionZIP {
		if err := unarchive(localFile, localDir); err != nil {
			return service.MakeTemporary(fmt.Errorf("URLImageProvider.Unarchive: %w", err))
		}
	}
	return nil
}
