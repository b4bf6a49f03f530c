package clipper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	osioGcs "github.com/airbusgeo/osio/gcs"
	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/log"
	"github.com/go-spatial/geom"
	"golang.org/x/sync/errgroup"
)

// gtiffSwitches are the fixed creation options of the clipped rasters.
// Reruns over identical inputs produce byte-identical outputs.
var gtiffSwitches = []string{"-of", "GTiff", "-co", "TILED=YES", "-co", "COMPRESS=DEFLATE"}

// Clipper windows the band rasters of downloaded scenes to the bounding box
// of an area of interest
type Clipper struct {
	InputDir   string   // scene directories as written by the acquisition stage (local path or gs://)
	OutputDir  string   // final destination, one subdirectory per scene
	Bands      []string // normalized labels (see common.ParseBands), empty for all
	Jobs       int      // concurrent scenes, sequential when <= 1
	NoManifest bool     // ignore the manifest of InputDir, scan it for band files
}

// Report summarizes a clipping run
type Report struct {
	Scenes  int // scene records processed
	Clipped int // bands written
	Skipped int // bands without intersection
	Failed  int // bands that could not be read or translated
	Results []common.Result
}

// Run clips all the bands listed by the manifest of InputDir (or found by a
// directory scan) and writes the outputs and their manifest to OutputDir.
// Band-level errors are recoverable: they are reported and the run continues.
func (c *Clipper) Run(ctx context.Context, aoiName string, aoi geom.Geometry) (Report, error) {
	report := Report{}

	extentp, err := geom.NewExtentFromGeometry(aoi)
	if err != nil {
		return report, fmt.Errorf("Run.NewExtentFromGeometry: %w", err)
	}
	extent := [4]float64{extentp.MinX(), extentp.MinY(), extentp.MaxX(), extentp.MaxY()}

	remote := strings.HasPrefix(c.InputDir, "gs://")
	if remote {
		if err := registerRemoteInput(ctx); err != nil {
			return report, fmt.Errorf("Run.%w", err)
		}
	}

	manifest, err := c.inputManifest(ctx, remote)
	if err != nil {
		return report, fmt.Errorf("Run.%w", err)
	}
	if err := os.MkdirAll(c.OutputDir, 0766); err != nil {
		return report, service.MakeTemporary(fmt.Errorf("Run: %w", err))
	}

	bands := c.Bands
	if len(bands) == 0 {
		bands = manifest.Bands
	}
	out := &common.Manifest{AOI: aoiName, Bands: bands}

	jobs := c.Jobs
	if jobs < 1 {
		jobs = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	var mu sync.Mutex
	for _, rec := range manifest.Scenes {
		g.Go(func() error {
			dir := rec.Dir
			if dir == "" {
				dir = rec.SourceID
			}
			if rec.Status != common.StatusDONE || len(rec.Bands) == 0 {
				mu.Lock()
				defer mu.Unlock()
				report.Results = append(report.Results, common.SceneResult(rec.SourceID, common.StatusSKIPPED, "scene is not downloaded"))
				return nil
			}

			bandFiles, err := c.ProcessScene(gctx, rec, extent)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if service.Fatal(err) {
					return fmt.Errorf("Run[%s].%w", rec.SourceID, err)
				}
				log.Logger(gctx).Sugar().Errorf("%s: %v", rec.SourceID, err)
				mu.Lock()
				defer mu.Unlock()
				out.SetScene(&common.SceneRecord{Scene: rec.Scene, Dir: dir, Status: common.StatusFAILED, Message: err.Error()})
				report.Failed++
				report.Results = append(report.Results, common.SceneResult(rec.SourceID, common.StatusFAILED, err.Error()))
				return out.Write(c.OutputDir)
			}

			mu.Lock()
			defer mu.Unlock()
			record := &common.SceneRecord{Scene: rec.Scene, Dir: dir, Status: sceneStatus(bandFiles), Bands: bandFiles}
			if len(bandFiles) == 0 {
				record.Message = "no bands to clip"
			}
			for _, b := range bandFiles {
				switch b.Status {
				case common.StatusDONE:
					report.Clipped++
				case common.StatusSKIPPED:
					report.Skipped++
				case common.StatusFAILED:
					report.Failed++
				}
				if b.Status != common.StatusDONE {
					report.Results = append(report.Results, common.BandResult(rec.SourceID, b.Band, b.Status, b.Comment))
				}
			}
			out.SetScene(record)
			report.Scenes++
			return out.Write(c.OutputDir)
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("Run.%w", err)
	}

	log.Logger(ctx).Sugar().Infof("%d bands clipped, %d skipped, %d failed (%d scenes)", report.Clipped, report.Skipped, report.Failed, report.Scenes)
	return report, nil
}

// ProcessScene clips the downloaded bands of one scene record.
// Unreadable bands and bands outside the area are reported in the returned
// slice, they do not interrupt the scene.
func (c *Clipper) ProcessScene(ctx context.Context, rec *common.SceneRecord, extent [4]float64) ([]common.BandFile, error) {
	dir := rec.Dir
	if dir == "" {
		dir = rec.SourceID
	}
	outDir := filepath.Join(c.OutputDir, dir)
	if err := os.MkdirAll(outDir, 0766); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("ProcessScene: %w", err))
	}

	var out []common.BandFile
	for _, band := range rec.Bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if band.Status != common.StatusDONE || !selectedBand(c.Bands, band.Band) {
			continue
		}
		src := inputPath(c.InputDir, dir, band.File)
		dst := clipFileName(band.File)
		win, intersects, err := clipRaster(src, filepath.Join(outDir, dst), extent)
		switch {
		case err != nil:
			log.Logger(ctx).Sugar().Warnf("%s[%s]: %v", rec.SourceID, band.Band, err)
			out = append(out, common.BandFile{Band: band.Band, Resolution: band.Resolution, Granule: band.Granule, Status: common.StatusFAILED, Comment: err.Error()})
		case !intersects:
			out = append(out, common.BandFile{Band: band.Band, Resolution: band.Resolution, Granule: band.Granule, Status: common.StatusSKIPPED, Comment: "no intersection with the area of interest"})
		default:
			log.Logger(ctx).Sugar().Debugf("%s[%s]: %dx%d pixels", rec.SourceID, band.Band, win.Width, win.Height)
			out = append(out, common.BandFile{Band: band.Band, Resolution: band.Resolution, File: dst, Granule: band.Granule, Status: common.StatusDONE})
		}
	}
	return out, nil
}

// clipRaster windows the raster at src to extent (longitude/latitude bounds)
// and writes the result to dst. The write is atomic: a temporary file renamed
// once the translation succeeded. intersects is false when the raster does
// not intersect the extent, in which case no file is written.
func clipRaster(src, dst string, extent [4]float64) (win Window, intersects bool, err error) {
	ds, err := godal.Open(src)
	if err != nil {
		return win, false, fmt.Errorf("clipRaster.Open: %w", err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return win, false, fmt.Errorf("clipRaster[%s]: not georeferenced: %w", src, err)
	}
	lonlat, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return win, false, fmt.Errorf("clipRaster.NewSpatialRefFromEPSG: %w", err)
	}
	defer lonlat.Close()
	tr, err := godal.NewTransform(lonlat, ds.SpatialRef())
	if err != nil {
		return win, false, fmt.Errorf("clipRaster[%s].NewTransform: %w", src, err)
	}
	defer tr.Close()

	projected, err := transformExtent(tr, extent)
	if err != nil {
		return win, false, fmt.Errorf("clipRaster[%s].%w", src, err)
	}
	structure := ds.Structure()
	win, intersects, err = windowFromExtent(gt, structure.SizeX, structure.SizeY, projected)
	if err != nil || !intersects {
		return win, intersects, err
	}

	tmp := dst + ".tmp"
	clipped, err := ds.Translate(tmp, append(win.srcwin(), gtiffSwitches...))
	if err != nil {
		os.Remove(tmp)
		return win, true, fmt.Errorf("clipRaster[%s].Translate: %w", src, err)
	}
	clipped.Close()
	if err := os.Rename(tmp, dst); err != nil {
		return win, true, fmt.Errorf("clipRaster: %w", err)
	}
	return win, true, nil
}

// bandFileRe matches a band raster extracted by the acquisition stage
var bandFileRe = regexp.MustCompile(`_(B\d[\dA])(?:_(\d{2})m)?\.(?:jp2|tif|tiff)$`)

// scanInputDir rebuilds a manifest from the scene directories of dir.
// Every subdirectory holding band rasters is a scene, named by the directory.
func scanInputDir(dir string) (*common.Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanInputDir: %w", err)
	}
	manifest := &common.Manifest{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("scanInputDir: %w", err)
		}
		var bands []common.BandFile
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			m := bandFileRe.FindStringSubmatch(f.Name())
			if m == nil {
				continue
			}
			resolution := 0
			if m[2] != "" {
				resolution, _ = strconv.Atoi(m[2])
			}
			bands = append(bands, common.BandFile{Band: m[1], Resolution: resolution, File: f.Name(), Status: common.StatusDONE})
		}
		if len(bands) == 0 {
			continue
		}
		manifest.Scenes = append(manifest.Scenes, &common.SceneRecord{
			Scene:  common.Scene{SourceID: strings.TrimSuffix(e.Name(), "."+string(service.ExtensionSAFE))},
			Dir:    e.Name(),
			Status: common.StatusDONE,
			Bands:  bands,
		})
	}
	return manifest, nil
}

// inputManifest loads the manifest of InputDir, falling back to a directory
// scan when there is none (local inputs only)
func (c *Clipper) inputManifest(ctx context.Context, remote bool) (*common.Manifest, error) {
	if remote {
		if c.NoManifest {
			return nil, fmt.Errorf("inputManifest: %s cannot be scanned, a remote input requires its manifest", c.InputDir)
		}
		return readRemoteManifest(ctx, c.InputDir)
	}
	if c.NoManifest {
		return scanInputDir(c.InputDir)
	}
	manifest, err := common.ReadManifest(c.InputDir)
	if os.IsNotExist(err) {
		log.Logger(ctx).Sugar().Debugf("no manifest in %s, scanning for band rasters", c.InputDir)
		return scanInputDir(c.InputDir)
	}
	if err != nil {
		return nil, fmt.Errorf("inputManifest.%w", err)
	}
	return manifest, nil
}

func readRemoteManifest(ctx context.Context, dir string) (*common.Manifest, error) {
	bucket, object, err := parseGsURI(strings.TrimSuffix(dir, "/") + "/" + common.ManifestFileName)
	if err != nil {
		return nil, fmt.Errorf("readRemoteManifest.%w", err)
	}
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("readRemoteManifest.NewClient: %w", err)
	}
	defer client.Close()
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("readRemoteManifest[%s]: %w", dir, err)
	}
	defer r.Close()
	manifest := &common.Manifest{}
	if err := json.NewDecoder(r).Decode(manifest); err != nil {
		return nil, fmt.Errorf("readRemoteManifest[%s]: %w", dir, err)
	}
	return manifest, nil
}

var vsiOnce sync.Once
var vsiErr error

// registerRemoteInput registers the gs:// protocol of godal.Open.
// The registration is global to the process.
func registerRemoteInput(ctx context.Context) error {
	vsiOnce.Do(func() {
		gcsr, err := osioGcs.Handle(ctx)
		if err != nil {
			vsiErr = fmt.Errorf("registerRemoteInput.GCSHandle: %w", err)
			return
		}
		adapter, err := osio.NewAdapter(gcsr)
		if err != nil {
			vsiErr = fmt.Errorf("registerRemoteInput.NewAdapter: %w", err)
			return
		}
		if err := godal.RegisterVSIHandler("gs://", adapter); err != nil {
			vsiErr = fmt.Errorf("registerRemoteInput.RegisterVSIHandler: %w", err)
		}
	})
	return vsiErr
}

func parseGsURI(uri string) (bucket, object string, err error) {
	trimmed, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("parseGsURI: not a gs:// uri: %s", uri)
	}
	bucket, object, ok = strings.Cut(trimmed, "/")
	if !ok {
		return "", "", fmt.Errorf("parseGsURI: no object in %s", uri)
	}
	return bucket, object, nil
}

// inputPath joins the path of a band raster under the input directory
func inputPath(inputDir, sceneDir, file string) string {
	if strings.HasPrefix(inputDir, "gs://") {
		return strings.TrimSuffix(inputDir, "/") + "/" + path.Join(sceneDir, file)
	}
	return filepath.Join(inputDir, sceneDir, file)
}

// clipFileName names the clipped raster of a band file
func clipFileName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_clip." + string(service.ExtensionGTiff)
}

func selectedBand(bands []string, band string) bool {
	if len(bands) == 0 {
		return true
	}
	for _, b := range bands {
		if b == band {
			return true
		}
	}
	return false
}

// sceneStatus summarizes the band statuses of a scene: DONE as soon as one
// band is clipped, FAILED when there are only failures, SKIPPED otherwise
func sceneStatus(bands []common.BandFile) common.Status {
	status := common.StatusSKIPPED
	for _, b := range bands {
		switch b.Status {
		case common.StatusDONE:
			return common.StatusDONE
		case common.StatusFAILED:
			status = common.StatusFAILED
		}
	}
	return status
}
