package downloader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service"
)

// bandImageRe matches the band images of a SAFE product
// L1C: T23KPQ_20230603T131239_B02.jp2, L2A: T23KPQ_20230603T131239_B02_10m.jp2
var bandImageRe = regexp.MustCompile(`_(B\d[\dA])(?:_(\d{2})m)?\.jp2$`)

// FindSAFEDir returns the directory of the product in dir
func FindSAFEDir(dir, sourceID string) (string, error) {
	for _, candidate := range []string{sourceID + "." + string(service.ExtensionSAFE), sourceID} {
		path := filepath.Join(dir, candidate)
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			return path, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*."+string(service.ExtensionSAFE)))
	if err == nil && len(matches) > 0 {
		return matches[0], nil
	}
	return "", fmt.Errorf("FindSAFEDir: no SAFE directory for %s in %s", sourceID, dir)
}

// FindBandFiles inventories the band images of the SAFE product
// When a band exists at several resolutions, only the highest (smallest pixel size) is kept
func FindBandFiles(safeDir string) ([]common.BandFile, error) {
	granuleDir := filepath.Join(safeDir, "GRANULE")
	granules, err := os.ReadDir(granuleDir)
	if err != nil {
		return nil, fmt.Errorf("FindBandFiles: %w", err)
	}

	byBand := map[string]common.BandFile{}
	for _, granule := range granules {
		if !granule.IsDir() {
			continue
		}
		imgData := filepath.Join(granuleDir, granule.Name(), "IMG_DATA")
		if _, err := os.Stat(imgData); err != nil {
			continue
		}
		err := filepath.WalkDir(imgData, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			m := bandImageRe.FindStringSubmatch(d.Name())
			if m == nil {
				return nil
			}
			band := m[1]
			resolution := 0
			if m[2] != "" {
				resolution, _ = strconv.Atoi(m[2])
			}
			if prev, ok := byBand[band]; ok && (prev.Resolution <= resolution) {
				return nil
			}
			rel, err := filepath.Rel(safeDir, path)
			if err != nil {
				return fmt.Errorf("Rel: %w", err)
			}
			byBand[band] = common.BandFile{
				Band:       band,
				Resolution: resolution,
				File:       rel,
				Granule:    granule.Name(),
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("FindBandFiles: %w", err)
		}
	}

	bands := make([]common.BandFile, 0, len(byBand))
	for _, b := range byBand {
		bands = append(bands, b)
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].Band < bands[j].Band })
	return bands, nil
}

// ExtractBands copies the requested band images of the SAFE product into sceneDir
// bands is a list of normalized labels (see common.ParseBands), empty for all
// Requested bands missing from the product are reported with a FAILED status
func ExtractBands(safeDir, sceneDir string, bands []string) ([]common.BandFile, error) {
	available, err := FindBandFiles(safeDir)
	if err != nil {
		return nil, fmt.Errorf("ExtractBands.%w", err)
	}
	if len(bands) == 0 {
		for _, b := range available {
			bands = append(bands, b.Band)
		}
	}

	byBand := map[string]common.BandFile{}
	for _, b := range available {
		byBand[b.Band] = b
	}

	if err := os.MkdirAll(sceneDir, 0766); err != nil {
		return nil, fmt.Errorf("ExtractBands: %w", err)
	}

	var out []common.BandFile
	for _, band := range bands {
		src, ok := byBand[band]
		if !ok {
			out = append(out, common.BandFile{Band: band, Status: common.StatusFAILED, Comment: "band not found in product"})
			continue
		}
		dst := filepath.Base(src.File)
		if err := fileCopy(filepath.Join(safeDir, src.File), filepath.Join(sceneDir, dst)); err != nil {
			return nil, fmt.Errorf("ExtractBands: %w", err)
		}
		src.File = dst
		src.Status = common.StatusDONE
		out = append(out, src)
	}
	return out, nil
}

// fileCopy copies a single file from src to dst
func fileCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fileCopy.Open: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("fileCopy.Create: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("fileCopy.Copy: %w", err)
	}
	return nil
}

// moveDir renames src to dst, falling back to a copy when they are not on the same filesystem
func moveDir(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("moveDir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	tmp := dst + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("moveDir: %w", err)
	}
	if err := copyDir(src, tmp); err != nil {
		return fmt.Errorf("moveDir.%w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("moveDir: %w", err)
	}
	return os.RemoveAll(src)
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0766)
		}
		return fileCopy(path, target)
	})
}
