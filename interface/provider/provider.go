package provider

import (
	"context"

	"github.com/aoitools/s2prep/common"
)

// ImageProvider is the interface of an image download service
type ImageProvider interface {
	// Download a scene to the given localDir
	// scene.SourceID is for example S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552
	// localDir is the directory where the product will be stored
	Download(ctx context.Context, scene common.Scene, localDir string) error

	// Name of the provider
	Name() string
}
