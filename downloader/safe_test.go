package downloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aoitools/s2prep/common"
)

func writeTree(t *testing.T, root string, files []string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0766); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(f), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFindSAFEDir(t *testing.T) {
	dir := t.TempDir()
	sourceID := "S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552"
	if _, err := FindSAFEDir(dir, sourceID); err == nil {
		t.Errorf("FindSAFEDir on an empty directory should fail")
	}
	safeDir := filepath.Join(dir, sourceID+".SAFE")
	if err := os.MkdirAll(safeDir, 0766); err != nil {
		t.Fatal(err)
	}
	found, err := FindSAFEDir(dir, sourceID)
	if err != nil {
		t.Fatal(err)
	}
	if found != safeDir {
		t.Errorf("FindSAFEDir returned %s, expected %s", found, safeDir)
	}
}

func TestFindBandFiles(t *testing.T) {
	granule := "L2A_T23KPQ_A032577_20230603T131235"
	safeDir := filepath.Join(t.TempDir(), "S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552.SAFE")
	writeTree(t, safeDir, []string{
		"GRANULE/" + granule + "/IMG_DATA/R10m/T23KPQ_20230603T131239_B02_10m.jp2",
		"GRANULE/" + granule + "/IMG_DATA/R20m/T23KPQ_20230603T131239_B02_20m.jp2",
		"GRANULE/" + granule + "/IMG_DATA/R20m/T23KPQ_20230603T131239_B05_20m.jp2",
		"GRANULE/" + granule + "/IMG_DATA/R60m/T23KPQ_20230603T131239_B01_60m.jp2",
		"GRANULE/" + granule + "/IMG_DATA/R60m/T23KPQ_20230603T131239_B05_60m.jp2",
		"GRANULE/" + granule + "/IMG_DATA/R10m/T23KPQ_20230603T131239_TCI_10m.jp2",
		"GRANULE/" + granule + "/QI_DATA/T23KPQ_20230603T131239_PVI.jp2",
	})

	bands, err := FindBandFiles(safeDir)
	if err != nil {
		t.Fatal(err)
	}

	// B02 and B05 exist at several resolutions: the highest one wins
	expected := map[string]int{"B01": 60, "B02": 10, "B05": 20}
	if len(bands) != len(expected) {
		t.Fatalf("found %d bands, expected %d", len(bands), len(expected))
	}
	for _, b := range bands {
		resolution, ok := expected[b.Band]
		if !ok {
			t.Errorf("unexpected band %s", b.Band)
			continue
		}
		if b.Resolution != resolution {
			t.Errorf("band %s: resolution=%d, expected %d", b.Band, b.Resolution, resolution)
		}
		if b.Granule != granule {
			t.Errorf("band %s: granule=%s, expected %s", b.Band, b.Granule, granule)
		}
		if _, err := os.Stat(filepath.Join(safeDir, b.File)); err != nil {
			t.Errorf("band %s: %v", b.Band, err)
		}
	}
}

func TestExtractBands(t *testing.T) {
	dir := t.TempDir()
	safeDir := filepath.Join(dir, "S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859.SAFE")
	writeTree(t, safeDir, []string{
		"GRANULE/L1C_T32UNF_A008506_20190108T104426/IMG_DATA/T32UNF_20190108T104429_B02.jp2",
		"GRANULE/L1C_T32UNF_A008506_20190108T104426/IMG_DATA/T32UNF_20190108T104429_B03.jp2",
		"GRANULE/L1C_T32UNF_A008506_20190108T104426/IMG_DATA/T32UNF_20190108T104429_B8A.jp2",
	})

	sceneDir := filepath.Join(dir, "bands")
	bands, err := ExtractBands(safeDir, sceneDir, []string{"B02", "B8A", "B12"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bands) != 3 {
		t.Fatalf("extracted %d bands, expected 3", len(bands))
	}
	checks := []struct {
		band   string
		file   string
		status common.Status
	}{
		{"B02", "T32UNF_20190108T104429_B02.jp2", common.StatusDONE},
		{"B8A", "T32UNF_20190108T104429_B8A.jp2", common.StatusDONE},
		{"B12", "", common.StatusFAILED},
	}
	for i, c := range checks {
		b := bands[i]
		if b.Band != c.band {
			t.Errorf("bands[%d].Band=%s, expected %s", i, b.Band, c.band)
		}
		if b.File != c.file {
			t.Errorf("bands[%d].File=%s, expected %s", i, b.File, c.file)
		}
		if b.Status != c.status {
			t.Errorf("bands[%d].Status=%s, expected %s", i, b.Status, c.status)
		}
		if c.status == common.StatusDONE {
			if _, err := os.Stat(filepath.Join(sceneDir, b.File)); err != nil {
				t.Errorf("bands[%d]: %v", i, err)
			}
		}
	}
}
