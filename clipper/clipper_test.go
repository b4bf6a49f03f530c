package clipper_test

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/aoitools/s2prep/clipper"
	"github.com/aoitools/s2prep/common"
	"github.com/go-spatial/geom"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Clipper", func() {
	const scene = "S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552"
	const bandB02 = "T23KPQ_20230603T131239_B02_10m.tif"
	const bandB03 = "T23KPQ_20230603T131239_B03_10m.tif"

	var (
		inDir, outDir string
		c             clipper.Clipper
		aoi           geom.Geometry
		report        clipper.Report
		runErr        error
	)

	// writeBandRaster creates a 64x64 10m band on the T23KPQ grid (UTM 23S)
	writeBandRaster := func(path string) {
		ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, 64, 64)
		Expect(err).NotTo(HaveOccurred())
		sr, err := godal.NewSpatialRefFromEPSG(32723)
		Expect(err).NotTo(HaveOccurred())
		defer sr.Close()
		Expect(ds.SetSpatialRef(sr)).To(Succeed())
		Expect(ds.SetGeoTransform([6]float64{600000, 10, 0, 8000040, 0, -10})).To(Succeed())
		Expect(ds.Close()).To(Succeed())
	}

	outManifest := func() *common.SceneRecord {
		manifest, err := common.ReadManifest(outDir)
		Expect(err).NotTo(HaveOccurred())
		rec := manifest.Scene(scene)
		Expect(rec).NotTo(BeNil())
		return rec
	}

	BeforeEach(func() {
		var err error
		inDir, err = os.MkdirTemp("", "clipper-in")
		Expect(err).NotTo(HaveOccurred())
		outDir, err = os.MkdirTemp("", "clipper-out")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.MkdirAll(filepath.Join(inDir, scene), 0766)).To(Succeed())
		writeBandRaster(filepath.Join(inDir, scene, bandB02))
		writeBandRaster(filepath.Join(inDir, scene, bandB03))
		manifest := &common.Manifest{AOI: "test", Scenes: []*common.SceneRecord{{
			Scene:  common.Scene{SourceID: scene, AOI: "test"},
			Dir:    scene,
			Status: common.StatusDONE,
			Bands: []common.BandFile{
				{Band: "B02", Resolution: 10, File: bandB02, Status: common.StatusDONE},
				{Band: "B03", Resolution: 10, File: bandB03, Status: common.StatusDONE},
			},
		}}}
		Expect(manifest.Write(inDir)).To(Succeed())

		c = clipper.Clipper{InputDir: inDir, OutputDir: outDir}
		aoi = geom.Polygon{{{-48, -22}, {-40, -22}, {-40, -14}, {-48, -14}}}
	})

	AfterEach(func() {
		os.RemoveAll(inDir)
		os.RemoveAll(outDir)
	})

	JustBeforeEach(func() {
		report, runErr = c.Run(ctx, "square", aoi)
	})

	Context("with an area covering the scene", func() {
		It("clips every band", func() {
			Expect(runErr).NotTo(HaveOccurred())
			Expect(report.Clipped).To(Equal(2))
			Expect(report.Skipped).To(BeZero())
			Expect(report.Failed).To(BeZero())
			for _, band := range []string{"B02", "B03"} {
				path := filepath.Join(outDir, scene, "T23KPQ_20230603T131239_"+band+"_10m_clip.tif")
				fi, err := os.Stat(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(fi.Size()).NotTo(BeZero())
			}
		})

		It("preserves the grid of the source band", func() {
			ds, err := godal.Open(filepath.Join(outDir, scene, "T23KPQ_20230603T131239_B02_10m_clip.tif"))
			Expect(err).NotTo(HaveOccurred())
			defer ds.Close()
			Expect(ds.Structure().SizeX).To(Equal(64))
			Expect(ds.Structure().SizeY).To(Equal(64))
			Expect(ds.Structure().NBands).To(Equal(1))
			gt, err := ds.GeoTransform()
			Expect(err).NotTo(HaveOccurred())
			Expect(gt[0]).To(Equal(600000.0))
			Expect(gt[1]).To(Equal(10.0))
			Expect(gt[3]).To(Equal(8000040.0))
		})

		It("writes the manifest of the clipped bands", func() {
			manifest, err := common.ReadManifest(outDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(manifest.AOI).To(Equal("square"))
			rec := manifest.Scene(scene)
			Expect(rec).NotTo(BeNil())
			Expect(rec.Status).To(Equal(common.StatusDONE))
			Expect(rec.Band("B02").File).To(Equal("T23KPQ_20230603T131239_B02_10m_clip.tif"))
			Expect(rec.Band("B03").Status).To(Equal(common.StatusDONE))
		})

		It("overwrites with identical outputs when rerun", func() {
			Expect(runErr).NotTo(HaveOccurred())
			path := filepath.Join(outDir, scene, "T23KPQ_20230603T131239_B02_10m_clip.tif")
			first, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Run(ctx, "square", aoi)
			Expect(err).NotTo(HaveOccurred())
			second, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(bytes.Equal(first, second)).To(BeTrue())
		})
	})

	Context("with an area west of the scene", func() {
		BeforeEach(func() {
			aoi = geom.Polygon{{{-46, -18.2}, {-45.8, -18.2}, {-45.8, -18}, {-46, -18}}}
		})

		It("skips every band and writes no raster", func() {
			Expect(runErr).NotTo(HaveOccurred())
			Expect(report.Clipped).To(BeZero())
			Expect(report.Skipped).To(Equal(2))
			entries, err := os.ReadDir(filepath.Join(outDir, scene))
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
			rec := outManifest()
			Expect(rec.Status).To(Equal(common.StatusSKIPPED))
			Expect(rec.Band("B02").Comment).To(ContainSubstring("no intersection"))
		})
	})

	Context("with an unreadable band", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(filepath.Join(inDir, scene, bandB03), []byte("not a raster"), 0644)).To(Succeed())
		})

		It("still clips the readable bands", func() {
			Expect(runErr).NotTo(HaveOccurred())
			Expect(report.Clipped).To(Equal(1))
			Expect(report.Failed).To(Equal(1))
			_, err := os.Stat(filepath.Join(outDir, scene, "T23KPQ_20230603T131239_B02_10m_clip.tif"))
			Expect(err).NotTo(HaveOccurred())
			rec := outManifest()
			Expect(rec.Status).To(Equal(common.StatusDONE))
			Expect(rec.Band("B02").Status).To(Equal(common.StatusDONE))
			Expect(rec.Band("B03").Status).To(Equal(common.StatusFAILED))
			Expect(report.Results).To(HaveLen(1))
			Expect(report.Results[0].Band).To(Equal("B03"))
		})
	})

	Context("with a band selection", func() {
		BeforeEach(func() {
			c.Bands = []string{"B03"}
		})

		It("clips only the selected bands", func() {
			Expect(runErr).NotTo(HaveOccurred())
			Expect(report.Clipped).To(Equal(1))
			rec := outManifest()
			Expect(rec.Band("B02")).To(BeNil())
			Expect(rec.Band("B03").Status).To(Equal(common.StatusDONE))
		})
	})

	Context("without a manifest", func() {
		BeforeEach(func() {
			Expect(os.Remove(filepath.Join(inDir, common.ManifestFileName))).To(Succeed())
		})

		It("scans the input directory", func() {
			Expect(runErr).NotTo(HaveOccurred())
			Expect(report.Clipped).To(Equal(2))
			rec := outManifest()
			Expect(rec.Status).To(Equal(common.StatusDONE))
		})
	})
})
