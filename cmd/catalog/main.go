package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
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
	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/log"
	"github.com/araddon/dateparse"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
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

	Catalogs string
	Port     string

	WorkingDir string
	Verbose    bool
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AOIPath, "aoi", "", "path of the GeoJSON file of the area of interest. If set, the catalog is searched once and the result is saved, otherwise an HTTP service is started.")
	flag.StringVar(&config.OutputDir, "output-dir", "", "directory for inventory.json and results.csv (default: inventory on stdout)")
	flag.StringVar(&config.Start, "start", "", "start of the sensing interval (most date formats are accepted)")
	flag.StringVar(&config.End, "end", "", "end of the sensing interval (inclusive; a date without time covers the whole day)")
	flag.StringVar(&config.Level, "level", "L2A", "processing level: L1C or L2A")
	flag.Float64Var(&config.MaxCloud, "max-cloud", 100, "maximum cloud cover percentage")
	flag.IntVar(&config.MaxScenes, "max-scenes", 0, "maximum number of scenes (0: unlimited)")

	flag.StringVar(&config.Catalogs, "catalog", "copernicus,opensearch", "catalogs to query, in order, until one answers")
	flag.StringVar(&config.Port, "port", "8080", "port of the catalog service")

	flag.StringVar(&config.WorkingDir, "working-dir", "", "working directory to store intermediate results (could be empty)")
	flag.BoolVar(&config.Verbose, "verbose", false, "enable debug logs")
	flag.Parse()

	if config.Port == "" && config.AOIPath == "" {
		return nil, fmt.Errorf("missing port config flag")
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

	c := catalog.Catalog{WorkingDir: config.WorkingDir}
	if config.Catalogs != "" {
		c.Providers = strings.Split(config.Catalogs, ",")
	}

	if config.AOIPath != "" {
		return searchArea(ctx, &c, config)
	}

	// HTTP server
	r := mux.NewRouter()
	c.AddHandler(r)
	s := http.Server{
		Addr:    ":" + config.Port,
		Handler: handlers.CompressHandler(handlers.LoggingHandler(os.Stdout, r)),
	}

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("catalog.ListenAndServe", zap.Error(err))
		}
	}()
	log.Logger(ctx).Sugar().Infof("catalog listens on :%s", config.Port)

	<-ctx.Done()
	sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
	defer cncl()
	return s.Shutdown(sctx)
}

func searchArea(ctx context.Context, c *catalog.Catalog, config *config) error {
	area, err := loadArea(config)
	if err != nil {
		return err
	}

	scenes, err := c.DoScenesInventory(ctx, area)
	if err != nil {
		return err
	}

	if config.OutputDir == "" {
		return json.NewEncoder(os.Stdout).Encode(scenes)
	}

	if err := os.MkdirAll(config.OutputDir, 0766); err != nil {
		return fmt.Errorf("make directory %s: %w", config.OutputDir, err)
	}
	if err := service.ToJSON(scenes, config.OutputDir, "inventory.json"); err != nil {
		return err
	}
	csv := bytes.Buffer{}
	if err := scenes.WriteCSV(&csv); err != nil {
		return err
	}
	if err := service.AtomicWriteFile(filepath.Join(config.OutputDir, "results.csv"), csv.Bytes(), 0644); err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("%d products found, metadata saved to %s", len(scenes.Scenes), config.OutputDir)
	return nil
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
