package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/aoitools/s2prep/catalog"
	"github.com/aoitools/s2prep/catalog/entities"
	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/downloader"
	"github.com/aoitools/s2prep/interface/provider"
	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/log"
	"github.com/araddon/dateparse"
	"github.com/go-spatial/geom/encoding/geojson"
	"go.uber.org/zap"
)

type config struct {
	AOIPath   string
	OutputDir string
	Start     string
	End       string
	Level     string
	MaxCloud  float64
	MaxScenes int
	Bands     string
	ListOnly  bool

	Username string
	Password string
	Catalogs string

	LocalProviderPath string
	GSBucket          string
	S3Bucket          string
	S3KeyTemplate     string
	S3Region          string
	S3RequesterPays   bool
	FTPPath           string
	FTPUsername       string
	FTPPassword       string
	URLPattern        string

	WorkingDir string
	Jobs       int
	Verbose    bool
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AOIPath, "aoi", "", "path of the GeoJSON file of the area of interest (required)")
	flag.StringVar(&config.OutputDir, "output-dir", "", "output directory for the band images, the manifest and results.csv (required)")
	flag.StringVar(&config.Start, "start", "", "start of the sensing interval (most date formats are accepted)")
	flag.StringVar(&config.End, "end", "", "end of the sensing interval (inclusive; a date without time covers the whole day)")
	flag.StringVar(&config.Level, "level", "L2A", "processing level: L1C or L2A")
	flag.Float64Var(&config.MaxCloud, "max-cloud", 100, "maximum cloud cover percentage")
	flag.IntVar(&config.MaxScenes, "max-scenes", 10, "maximum number of scenes to process (0: unlimited)")
	flag.StringVar(&config.Bands, "bands", "", "comma-separated list of bands to extract (default: all the bands of the product)")
	flag.BoolVar(&config.ListOnly, "list-only", false, "only save the inventory and results.csv, do not download")

	flag.StringVar(&config.Username, "user", "", "Copernicus Dataspace username (default: $CDSE_USERNAME)")
	flag.StringVar(&config.Password, "password", "", "Copernicus Dataspace password (default: $CDSE_PASSWORD)")
	flag.StringVar(&config.Catalogs, "catalog", "copernicus,opensearch", "catalogs to query, in order, until one answers")

	flag.StringVar(&config.LocalProviderPath, "local-path", "", "local path where products are stored (optional). To configure a local directory as a potential image provider.")
	flag.StringVar(&config.GSBucket, "gs-bucket", "", "Google Storage bucket (optional). Can contain several {IDENTIFIER} that will be replaced according to the scene name. To configure GS as a potential image provider.")
	flag.StringVar(&config.S3Bucket, "s3-bucket", "", "S3 bucket (optional), 'eodata' for the Copernicus Dataspace mirror. To configure S3 as a potential image provider.")
	flag.StringVar(&config.S3KeyTemplate, "s3-key-template", "{SCENE}.SAFE", "object key template of the S3 bucket. Can contain several {IDENTIFIER}.")
	flag.StringVar(&config.S3Region, "s3-region", "", "region of the S3 bucket")
	flag.BoolVar(&config.S3RequesterPays, "s3-requester-pays", false, "the S3 bucket is requester-pays")
	flag.StringVar(&config.FTPPath, "ftp", "", "ftp path pattern, i.e. ftp://host:21/images/{SCENE}.zip (optional). To configure FTP as a potential image provider.")
	flag.StringVar(&config.FTPUsername, "ftp-user", "", "ftp account username (optional)")
	flag.StringVar(&config.FTPPassword, "ftp-password", "", "ftp account password (optional)")
	flag.StringVar(&config.URLPattern, "url-pattern", "", "download url pattern, i.e. https://host/{SCENE}.zip (optional). To configure direct links as a potential image provider.")

	flag.StringVar(&config.WorkingDir, "working-dir", "", "working directory for intermediate results (default: os temp)")
	flag.IntVar(&config.Jobs, "jobs", 1, "number of scenes downloaded concurrently")
	flag.BoolVar(&config.Verbose, "verbose", false, "enable debug logs")
	flag.Parse()

	if config.AOIPath == "" {
		return nil, fmt.Errorf("missing aoi config flag")
	}
	if config.OutputDir == "" {
		return nil, fmt.Errorf("missing output-dir config flag")
	}
	if config.Username == "" {
		config.Username = os.Getenv("CDSE_USERNAME")
	}
	if config.Password == "" {
		config.Password = os.Getenv("CDSE_PASSWORD")
	}
	if config.WorkingDir == "" {
		config.WorkingDir = os.TempDir()
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

	area, err := loadArea(config)
	if err != nil {
		return err
	}

	// Inventory
	c := catalog.Catalog{}
	if config.Catalogs != "" {
		c.Providers = strings.Split(config.Catalogs, ",")
	}
	scenes, err := c.DoScenesInventory(ctx, area)
	if err != nil {
		return err
	}
	if len(scenes.Scenes) == 0 {
		log.Logger(ctx).Info("no products found for the given filters")
		return nil
	}

	// Save the metadata
	if err := os.MkdirAll(config.OutputDir, 0766); err != nil {
		return fmt.Errorf("make directory %s: %w", config.OutputDir, err)
	}
	csv := bytes.Buffer{}
	if err := scenes.WriteCSV(&csv); err != nil {
		return err
	}
	csvPath := filepath.Join(config.OutputDir, "results.csv")
	if err := service.AtomicWriteFile(csvPath, csv.Bytes(), 0644); err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("%d products found, metadata saved to %s", len(scenes.Scenes), csvPath)

	if config.ListOnly {
		return nil
	}

	// Download
	imageProviders, providerNames, err := loadImageProviders(ctx, config)
	if err != nil {
		return err
	}
	log.Logger(ctx).Debug("downloading products from " + strings.Join(providerNames, ", "))

	manifest, err := common.ReadManifest(config.OutputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		manifest = &common.Manifest{}
	}
	manifest.AOI = area.AOIID
	manifest.Bands = area.Bands

	d := downloader.Downloader{
		ImageProviders: imageProviders,
		Bands:          area.Bands,
		WorkDir:        config.WorkingDir,
		OutDir:         config.OutputDir,
		Jobs:           config.Jobs,
	}
	commonScenes := make([]common.Scene, len(scenes.Scenes))
	for i, scene := range scenes.Scenes {
		commonScenes[i] = scene.Scene
	}
	_, err = d.Run(ctx, commonScenes, manifest)
	return err
}

func loadArea(config *config) (entities.AreaOfInterest, error) {
	area := entities.AreaOfInterest{
		AOIID:         aoiName(config.AOIPath),
		MaxCloudCover: config.MaxCloud,
		MaxScenes:     config.MaxScenes,
	}

	g, err := service.UnmarshalGeometryFile(config.AOIPath)
	if err != nil {
		return area, err
	}
	area.AOI = geojson.Geometry{Geometry: g}

	if area.Level, err = common.ParseLevel(config.Level); err != nil {
		return area, err
	}
	if config.Bands != "" {
		if area.Bands, err = common.ParseBands(config.Bands); err != nil {
			return area, err
		}
	}
	if config.Start != "" {
		if area.StartTime, err = dateparse.ParseIn(config.Start, time.UTC); err != nil {
			return area, fmt.Errorf("parse start date: %w", err)
		}
	}
	if config.End != "" {
		if area.EndTime, err = dateparse.ParseIn(config.End, time.UTC); err != nil {
			return area, fmt.Errorf("parse end date: %w", err)
		}
		if midnight(area.EndTime) {
			area.EndTime = area.EndTime.Add(24*time.Hour - time.Millisecond)
		}
	}
	return area, nil
}

func midnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
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

func loadImageProviders(ctx context.Context, config *config) ([]provider.ImageProvider, []string, error) {
	var imageProviders []provider.ImageProvider
	var providerNames []string
	if config.LocalProviderPath != "" {
		providerNames = append(providerNames, "local ("+config.LocalProviderPath+")")
		imageProviders = append(imageProviders, provider.NewLocalImageProvider(config.LocalProviderPath))
	}
	if config.GSBucket != "" {
		gs, err := provider.NewGSImageProvider(ctx)
		if err != nil {
			return nil, nil, err
		}
		gs.AddBucket(config.GSBucket)
		providerNames = append(providerNames, "GS ("+config.GSBucket+")")
		imageProviders = append(imageProviders, gs)
	}
	if config.S3Bucket == provider.EodataBucket {
		providerNames = append(providerNames, "eodata")
		imageProviders = append(imageProviders, provider.NewEodataImageProvider("", ""))
	} else if config.S3Bucket != "" {
		providerNames = append(providerNames, "S3 ("+config.S3Bucket+")")
		imageProviders = append(imageProviders, provider.NewS3ImageProvider(config.S3Bucket, config.S3KeyTemplate, config.S3Region, "", "", "", config.S3RequesterPays))
	}
	if config.FTPPath != "" {
		providerNames = append(providerNames, "FTP")
		imageProviders = append(imageProviders, provider.NewFTPImageProvider(config.FTPPath, config.FTPUsername, config.FTPPassword))
	}
	if config.URLPattern != "" {
		providerNames = append(providerNames, "URL")
		imageProviders = append(imageProviders, provider.NewURLImageProvider(config.URLPattern, "", ""))
	}
	if config.Username != "" {
		providerNames = append(providerNames, "Copernicus ("+config.Username+")")
		imageProviders = append(imageProviders, provider.NewCopernicusImageProvider(config.Username, config.Password))
	}
	if len(imageProviders) == 0 {
		return nil, nil, fmt.Errorf("no image provider configured (set the Copernicus credentials with -user/-password or $CDSE_USERNAME/$CDSE_PASSWORD, or configure a mirror)")
	}
	return imageProviders, providerNames, nil
}
