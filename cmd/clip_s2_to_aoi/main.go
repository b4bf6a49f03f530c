package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/airbusgeo/godal"
	"github.com/aoitools/s2prep/clipper"
	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/log"
	"go.uber.org/zap"
)

type config struct {
	InputDir   string
	AOIPath    string
	OutputDir  string
	Bands      string
	Jobs       int
	NoManifest bool
	Verbose    bool
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.InputDir, "input-dir", "", "directory of the downloaded scenes, local or gs:// (required)")
	flag.StringVar(&config.AOIPath, "aoi", "", "path of the GeoJSON file of the area of interest (required)")
	flag.StringVar(&config.OutputDir, "output-dir", "", "output directory for the clipped rasters (required)")
	flag.StringVar(&config.Bands, "bands", "", "comma-separated list of bands to clip (default: all the bands of the input)")
	flag.IntVar(&config.Jobs, "jobs", 1, "number of scenes clipped concurrently")
	flag.BoolVar(&config.NoManifest, "no-manifest", false, "ignore the input manifest and scan the input directory")
	flag.BoolVar(&config.Verbose, "verbose", false, "enable debug logs")
	flag.Parse()

	if config.InputDir == "" {
		return nil, fmt.Errorf("missing input-dir config flag")
	}
	if config.AOIPath == "" {
		return nil, fmt.Errorf("missing aoi config flag")
	}
	if config.OutputDir == "" {
		return nil, fmt.Errorf("missing output-dir config flag")
	}
	return &config, nil
}

func main() {
	ctx, cncl := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cncl()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	log.SetVerbose(config.Verbose)

	godal.RegisterAll()

	aoi, err := service.UnmarshalGeometryFile(config.AOIPath)
	if err != nil {
		return err
	}

	var bands []string
	if config.Bands != "" {
		if bands, err = common.ParseBands(config.Bands); err != nil {
			return err
		}
	}

	c := clipper.Clipper{
		InputDir:   config.InputDir,
		OutputDir:  config.OutputDir,
		Bands:      bands,
		Jobs:       config.Jobs,
		NoManifest: config.NoManifest,
	}
	_, err = c.Run(ctx, aoiName(config.AOIPath), aoi)
	return err
}

var aoiNameInvalidRe = regexp.MustCompile("[^a-zA-Z0-9-:_]+")

// aoiName derives the AOI identifier from the GeoJSON file name
func aoiName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = aoiNameInvalidRe.ReplaceAllString(name, "-")
	if name == "" {
		return "aoi"
	}
	return name
}
