package downloader_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/downloader"
	"github.com/aoitools/s2prep/interface/provider"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// FakeImageProvider implements ImageProvider, writing a synthetic SAFE product
type FakeImageProvider struct {
	level     common.Level
	downloads int
	fail      error
}

// Name implements ImageProvider
func (p *FakeImageProvider) Name() string {
	return "Fake"
}

// Download implements ImageProvider
func (p *FakeImageProvider) Download(ctx context.Context, scene common.Scene, localDir string) error {
	if p.fail != nil {
		return p.fail
	}
	p.downloads++
	return writeSAFEProduct(localDir, scene.SourceID, p.level)
}

// writeSAFEProduct creates a minimal SAFE tree with the band images of the given level
func writeSAFEProduct(dir, sourceID string, level common.Level) error {
	tile, datetime := sourceID[38:44], sourceID[11:26]
	prefix := tile + "_" + datetime
	granule := level.String() + "_" + tile + "_A032577_" + datetime
	imgData := filepath.Join(dir, sourceID+".SAFE", "GRANULE", granule, "IMG_DATA")

	var images []string
	switch level {
	case common.LevelL2A:
		images = []string{
			filepath.Join("R10m", prefix+"_B02_10m.jp2"),
			filepath.Join("R10m", prefix+"_B03_10m.jp2"),
			filepath.Join("R10m", prefix+"_B04_10m.jp2"),
			filepath.Join("R10m", prefix+"_B08_10m.jp2"),
			filepath.Join("R20m", prefix+"_B02_20m.jp2"),
			filepath.Join("R20m", prefix+"_B05_20m.jp2"),
			filepath.Join("R20m", prefix+"_B8A_20m.jp2"),
			filepath.Join("R60m", prefix+"_B01_60m.jp2"),
			filepath.Join("R60m", prefix+"_B09_60m.jp2"),
		}
	default:
		images = []string{
			prefix + "_B01.jp2", prefix + "_B02.jp2", prefix + "_B03.jp2", prefix + "_B04.jp2",
			prefix + "_B08.jp2", prefix + "_B8A.jp2", prefix + "_B10.jp2",
		}
	}
	for _, image := range images {
		path := filepath.Join(imgData, image)
		if err := os.MkdirAll(filepath.Dir(path), 0766); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte("jp2 "+image), 0644); err != nil {
			return err
		}
	}
	return nil
}

var _ = Describe("Downloader", func() {
	scene1 := common.Scene{SourceID: "S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552", AOI: "test"}
	scene2 := common.Scene{SourceID: "S2A_MSIL2A_20230608T131301_N0509_R138_T23KPQ_20230608T152619", AOI: "test"}
	scenes := []common.Scene{scene1, scene2}

	var (
		outDir, workDir string
		fake            *FakeImageProvider
		d               *downloader.Downloader
		manifest        *common.Manifest
		report          downloader.Report
		err             error
	)

	BeforeEach(func() {
		outDir, err = os.MkdirTemp("", "downloader-out")
		Expect(err).NotTo(HaveOccurred())
		workDir, err = os.MkdirTemp("", "downloader-work")
		Expect(err).NotTo(HaveOccurred())

		fake = &FakeImageProvider{level: common.LevelL2A}
		d = &downloader.Downloader{
			ImageProviders: []provider.ImageProvider{fake},
			Bands:          []string{"B02", "B03"},
			WorkDir:        workDir,
			OutDir:         outDir,
		}
		manifest = &common.Manifest{AOI: "test", Bands: d.Bands}
	})

	AfterEach(func() {
		os.RemoveAll(outDir)
		os.RemoveAll(workDir)
	})

	JustBeforeEach(func() {
		report, err = d.Run(ctx, scenes, manifest)
	})

	Context("With an empty output directory", func() {
		It("should download all the scenes", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Downloaded).To(Equal(2))
			Expect(report.Skipped).To(Equal(0))
			Expect(report.Failed).To(Equal(0))
		})

		It("should extract the requested bands at the highest resolution", func() {
			Expect(err).NotTo(HaveOccurred())
			record := manifest.Scene(scene1.SourceID)
			Expect(record).NotTo(BeNil())
			Expect(record.Status).To(Equal(common.StatusDONE))
			Expect(record.Bands).To(HaveLen(2))

			b02 := record.Band("B02")
			Expect(b02).NotTo(BeNil())
			Expect(b02.Resolution).To(Equal(10))
			Expect(b02.Status).To(Equal(common.StatusDONE))

			_, err := os.Stat(filepath.Join(outDir, record.Dir, b02.File))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should leave no working directory behind", func() {
			entries, err := os.ReadDir(workDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("should persist the manifest", func() {
			m, err := common.ReadManifest(outDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Scenes).To(HaveLen(2))
			Expect(m.Scene(scene2.SourceID).Status).To(Equal(common.StatusDONE))
		})
	})

	Context("When the scenes are already downloaded", func() {
		BeforeEach(func() {
			_, err := d.Run(ctx, scenes, manifest)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.downloads).To(Equal(2))
		})

		It("should skip them", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Skipped).To(Equal(2))
			Expect(report.Downloaded).To(Equal(0))
			Expect(fake.downloads).To(Equal(2))
		})

		Context("and a band file has been removed", func() {
			BeforeEach(func() {
				record := manifest.Scene(scene1.SourceID)
				Expect(os.Remove(filepath.Join(outDir, record.Dir, record.Band("B03").File))).To(Succeed())
			})

			It("should download the scene again", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(report.Downloaded).To(Equal(1))
				Expect(report.Skipped).To(Equal(1))
			})
		})
	})

	Context("When the first provider fails", func() {
		BeforeEach(func() {
			failing := &FakeImageProvider{fail: fmt.Errorf("connection reset")}
			d.ImageProviders = []provider.ImageProvider{failing, fake}
		})

		It("should fall back to the next provider", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Downloaded).To(Equal(2))
			Expect(report.Failed).To(Equal(0))
		})
	})

	Context("When all the providers fail", func() {
		BeforeEach(func() {
			d.ImageProviders = []provider.ImageProvider{&FakeImageProvider{fail: fmt.Errorf("connection reset")}}
		})

		It("should report the scenes as failed and carry on", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Failed).To(Equal(2))
			Expect(report.Downloaded).To(Equal(0))

			record := manifest.Scene(scene1.SourceID)
			Expect(record.Status).To(Equal(common.StatusFAILED))
			Expect(record.Message).To(ContainSubstring("connection reset"))

			Expect(report.Results).To(HaveLen(2))
			Expect(report.Results[0].Status).To(Equal(common.StatusFAILED))
		})
	})

	Context("When a requested band is missing from the product", func() {
		BeforeEach(func() {
			d.Bands = []string{"B02", "B10"} // B10 is absent from L2A products
		})

		It("should record the missing band and keep the others", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Downloaded).To(Equal(2))

			record := manifest.Scene(scene1.SourceID)
			Expect(record.Status).To(Equal(common.StatusDONE))
			Expect(record.Band("B02").Status).To(Equal(common.StatusDONE))
			Expect(record.Band("B10").Status).To(Equal(common.StatusFAILED))
			Expect(record.Band("B10").Comment).To(ContainSubstring("not found"))
		})
	})
})
