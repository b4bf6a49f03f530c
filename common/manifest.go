package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aoitools/s2prep/service"
)

// ManifestFileName is the name of the manifest at the root of an output directory
const ManifestFileName = "manifest.json"

// BandFile describes one band raster inside a scene directory
type BandFile struct {
	Band       string `json:"band"`                 // canonical label (B02..B12, B8A)
	Resolution int    `json:"resolution,omitempty"` // ground resolution in meters (0 if not encoded in the file name)
	File       string `json:"file"`                 // path relative to the scene directory
	Granule    string `json:"granule,omitempty"`    // granule identifier inside the product
	Status     Status `json:"status"`
	Comment    string `json:"comment,omitempty"`
}

// SceneRecord is the manifest entry of one scene
type SceneRecord struct {
	Scene
	Dir     string     `json:"dir"` // scene directory, relative to the manifest
	Status  Status     `json:"status"`
	Message string     `json:"message,omitempty"`
	Bands   []BandFile `json:"bands,omitempty"`
}

// Band returns the record of the given band, or nil
func (r *SceneRecord) Band(label string) *BandFile {
	for i := range r.Bands {
		if r.Bands[i].Band == label {
			return &r.Bands[i]
		}
	}
	return nil
}

// Manifest describes the content of an output directory: the scenes and their
// band files, with the status of each. It is the contract between the
// acquisition and the clipping stages.
type Manifest struct {
	AOI    string         `json:"aoi"`
	Bands  []string       `json:"bands,omitempty"` // requested band selection
	Scenes []*SceneRecord `json:"scenes"`
}

// Scene returns the record of the given scene, or nil
func (m *Manifest) Scene(sourceID string) *SceneRecord {
	for _, r := range m.Scenes {
		if r.SourceID == sourceID {
			return r
		}
	}
	return nil
}

// SetScene inserts or replaces the record of rec.SourceID
func (m *Manifest) SetScene(rec *SceneRecord) {
	for i, r := range m.Scenes {
		if r.SourceID == rec.SourceID {
			m.Scenes[i] = rec
			return
		}
	}
	m.Scenes = append(m.Scenes, rec)
}

// ReadManifest loads the manifest of the given directory.
// The error satisfies os.IsNotExist if there is no manifest.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, err
	}
	manifest := &Manifest{}
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("ReadManifest[%s]: %w", dir, err)
	}
	return manifest, nil
}

// Write persists the manifest at the root of dir. The write is atomic and the
// output is deterministic: scenes and bands are sorted and no timestamp is added.
func (m *Manifest) Write(dir string) error {
	sort.Slice(m.Scenes, func(i, j int) bool { return m.Scenes[i].SourceID < m.Scenes[j].SourceID })
	for _, r := range m.Scenes {
		sort.Slice(r.Bands, func(i, j int) bool {
			if r.Bands[i].Band != r.Bands[j].Band {
				return r.Bands[i].Band < r.Bands[j].Band
			}
			return r.Bands[i].Resolution < r.Bands[j].Resolution
		})
	}
	if err := service.AtomicWriteJSON(filepath.Join(dir, ManifestFileName), m); err != nil {
		return fmt.Errorf("Manifest.Write.%w", err)
	}
	return nil
}
