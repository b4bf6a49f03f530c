package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/interface/provider"
	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Downloader downloads scenes and extracts their band images
type Downloader struct {
	ImageProviders []provider.ImageProvider
	Bands          []string // normalized labels (see common.ParseBands), empty for all
	WorkDir        string   // scratch space, one uuid subdirectory per scene
	OutDir         string   // final destination, one subdirectory per scene
	Jobs           int      // concurrent scenes, sequential when <= 1
}

// Report sums up a run
type Report struct {
	Downloaded int
	Skipped    int
	Failed     int
	Results    []common.Result
}

// ProcessScene downloads a scene with the first successful image provider and
// moves the extracted band images into OutDir/<SourceID>
func (d *Downloader) ProcessScene(ctx context.Context, scene common.Scene) ([]common.BandFile, error) {
	// Working dir
	workdir := filepath.Join(d.WorkDir, uuid.New().String())
	if err := os.MkdirAll(workdir, 0766); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("make directory %s: %w", workdir, err))
	}
	defer os.RemoveAll(workdir)

	// Download with the first successful imageProvider
	log.Logger(ctx).Sugar().Infof("downloading %s", scene.SourceID)
	var err error
	for _, imageProvider := range d.ImageProviders {
		e := imageProvider.Download(ctx, scene, workdir)
		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
		log.Logger(ctx).Sugar().Warnf("%v", e)
	}
	if err != nil {
		return nil, fmt.Errorf("ProcessScene.ImageProviders.%w", err)
	}

	// Extract the band images
	log.Logger(ctx).Sugar().Infof("extracting %s", scene.SourceID)
	safeDir, err := FindSAFEDir(workdir, scene.SourceID)
	if err != nil {
		return nil, fmt.Errorf("ProcessScene.%w", err)
	}
	staging := filepath.Join(workdir, "bands", scene.SourceID)
	bands, err := ExtractBands(safeDir, staging, d.Bands)
	if err != nil {
		return nil, fmt.Errorf("ProcessScene.%w", err)
	}

	// Move into place. The scene only exists for the next stage once renamed
	if err := os.MkdirAll(d.OutDir, 0766); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("ProcessScene: %w", err))
	}
	if err := moveDir(staging, filepath.Join(d.OutDir, scene.SourceID)); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("ProcessScene.%w", err))
	}
	return bands, nil
}

// sceneComplete returns whether the scene has already been downloaded with all the requested bands
func (d *Downloader) sceneComplete(record *common.SceneRecord) bool {
	if record == nil || record.Status != common.StatusDONE {
		return false
	}
	for _, band := range d.Bands {
		if record.Band(band) == nil {
			return false
		}
	}
	dir := record.Dir
	if dir == "" {
		dir = record.SourceID
	}
	for _, b := range record.Bands {
		if b.Status != common.StatusDONE {
			continue
		}
		fi, err := os.Stat(filepath.Join(d.OutDir, dir, b.File))
		if err != nil || fi.Size() == 0 {
			return false
		}
	}
	return true
}

// Run processes all the scenes, keeping the manifest up to date after each one
// Scene failures do not stop the run unless fatal
func (d *Downloader) Run(ctx context.Context, scenes []common.Scene, manifest *common.Manifest) (Report, error) {
	jobs := d.Jobs
	if jobs < 1 {
		jobs = 1
	}

	var mu sync.Mutex
	report := Report{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, scene := range scenes {
		g.Go(func() error {
			mu.Lock()
			complete := d.sceneComplete(manifest.Scene(scene.SourceID))
			mu.Unlock()
			if complete {
				log.Logger(gctx).Sugar().Infof("%s already downloaded", scene.SourceID)
				mu.Lock()
				report.Skipped++
				report.Results = append(report.Results, common.SceneResult(scene.SourceID, common.StatusSKIPPED, "already downloaded"))
				mu.Unlock()
				return nil
			}

			bands, err := d.ProcessScene(gctx, scene)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			record := &common.SceneRecord{Scene: scene, Dir: scene.SourceID, Bands: bands}
			if err != nil {
				record.Status, record.Message = common.StatusFAILED, err.Error()
				report.Failed++
				report.Results = append(report.Results, common.SceneResult(scene.SourceID, common.StatusFAILED, err.Error()))
			} else {
				record.Status = common.StatusDONE
				report.Downloaded++
				report.Results = append(report.Results, common.SceneResult(scene.SourceID, common.StatusDONE, ""))
			}
			manifest.SetScene(record)
			if werr := manifest.Write(d.OutDir); werr != nil {
				return fmt.Errorf("Run.%w", werr)
			}
			if err != nil {
				if service.Fatal(err) {
					return fmt.Errorf("Run[%s].%w", scene.SourceID, err)
				}
				log.Logger(gctx).Sugar().Errorf("download %s: %v", scene.SourceID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	log.Logger(ctx).Sugar().Infof("%d scenes downloaded, %d skipped, %d failed", report.Downloaded, report.Skipped, report.Failed)
	return report, nil
}
