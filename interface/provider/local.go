package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service"
)

// LocalImageProvider implements ImageProvider for local storage
type LocalImageProvider struct {
	path string
}

// Name implements ImageProvider
func (ip *LocalImageProvider) Name() string {
	return "FileSystem (" + ip.path + ")"
}

// NewLocalImageProvider creates a new ImageProvider from local storage
// Products are looked up as <path>/<scene>.zip or <path>/<year>/<month>/<day>/<scene>.zip
func NewLocalImageProvider(path string) *LocalImageProvider {
	return &LocalImageProvider{path: path}
}

// Download implements ImageProvider
func (ip *LocalImageProvider) Download(ctx context.Context, scene common.Scene, localDir string) error {
	// Retrieve date of the scene from name
	sceneName := scene.SourceID
	date, err := common.GetDateFromProductId(sceneName)
	if err != nil {
		return fmt.Errorf("LocalImageProvider: %w", err)
	}

	// Create the list of subfolders
	folders := strings.Split(date.Format("2006-01-02"), "-")

	zipName := service.ProductFileName(sceneName, service.ExtensionZIP)
	candidates := []string{
		path.Join(ip.path, zipName),
		path.Join(ip.path, folders[0], folders[1], folders[2], zipName),
	}
	for _, srcZip := range candidates {
		if _, err := os.Stat(srcZip); err != nil {
			if service.IsErrNotFound(err) {
				continue
			}
			return fmt.Errorf("LocalImageProvider: %w", err)
		}
		if err := unarchive(srcZip, localDir); err != nil {
			return fmt.Errorf("LocalImageProvider.Unarchive: %w", err)
		}
		return nil
	}
	return ErrProductNotFound{sceneName}
}
