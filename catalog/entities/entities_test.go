package entities

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/aoitools/s2prep/common"
)

func TestMarshallScenes(t *testing.T) {
	scenes := Scenes{
		Scenes: []*Scene{
			{Scene: common.Scene{SourceID: "S2B_MSIL2A_20210106T131249_N0214_R138_T23KPQ_20210106T153441"}, Tags: map[string]string{common.TagIngestionDate: "20210107"}, GeometryWKT: "POLYGON ((8.602359 52.724068,12.720232 53.141727,13.151229 51.523666,9.198775 51.110802,8.602359 52.724068))"},
			{Scene: common.Scene{SourceID: "S2A_MSIL2A_20210101T131251_N0214_R138_T23KPQ_20210101T144409"}, Tags: map[string]string{common.TagIngestionDate: "20210102"}, GeometryWKT: "POLYGON ((8.602359 55.724068,12.720232 56.141727,13.151229 54.523666,9.198775 54.110802,8.602359 55.724068))"},
			{Scene: common.Scene{
				SourceID: "S2A_MSIL2A_20210111T131241_N0214_R138_T23KPQ_20210111T160140",
				AOI:      "niteroi",
				Data: common.SceneAttrs{
					UUID:         "0a1b2c3d",
					ProductLevel: common.LevelL2A,
					CloudCover:   33.27,
					Online:       true,
					S3Path:       "/eodata/Sentinel-2/MSI/L2A/2021/01/11/S2A_MSIL2A_20210111T131241_N0214_R138_T23KPQ_20210111T160140.SAFE",
				},
			}, Tags: map[string]string{common.TagIngestionDate: "20210112"}, GeometryWKT: "POLYGON ((8.602359 58.724068,12.720232 59.141727,13.151229 57.523666,9.198775 57.110802,8.602359 58.724068))"},
		},
		Properties: map[string]string{"aoi": "niteroi"},
	}

	geojson, err := json.Marshal(scenes)
	if err != nil {
		t.Fatal(err)
	}
	if string(geojson) != `{"type":"FeatureCollection","features":[{"type":"Feature","id":0,"geometry":{"type":"Polygon","coordinates":[[[8.602359,52.724068],[12.720232,53.141727],[13.151229,51.523666],[9.198775,51.110802],[8.602359,52.724068]]]},"properties":{"aoi":"","data":{"cloud_cover":0,"date":"0001-01-01T00:00:00Z","end_date":"0001-01-01T00:00:00Z","online":false,"product_level":"Unknown","uuid":""},"source_id":"S2B_MSIL2A_20210106T131249_N0214_R138_T23KPQ_20210106T153441","tags":{"ingestionDate":"20210107"},"wkt":"POLYGON ((8.602359 52.724068,12.720232 53.141727,13.151229 51.523666,9.198775 51.110802,8.602359 52.724068))"}},{"type":"Feature","id":1,"geometry":{"type":"Polygon","coordinates":[[[8.602359,55.724068],[12.720232,56.141727],[13.151229,54.523666],[9.198775,54.110802],[8.602359,55.724068]]]},"properties":{"aoi":"","data":{"cloud_cover":0,"date":"0001-01-01T00:00:00Z","end_date":"0001-01-01T00:00:00Z","online":false,"product_level":"Unknown","uuid":""},"source_id":"S2A_MSIL2A_20210101T131251_N0214_R138_T23KPQ_20210101T144409","tags":{"ingestionDate":"20210102"},"wkt":"POLYGON ((8.602359 55.724068,12.720232 56.141727,13.151229 54.523666,9.198775 54.110802,8.602359 55.724068))"}},{"type":"Feature","id":2,"geometry":{"type":"Polygon","coordinates":[[[8.602359,58.724068],[12.720232,59.141727],[13.151229,57.523666],[9.198775,57.110802],[8.602359,58.724068]]]},"properties":{"aoi":"niteroi","data":{"cloud_cover":33.27,"date":"0001-01-01T00:00:00Z","end_date":"0001-01-01T00:00:00Z","online":true,"product_level":"L2A","s3_path":"/eodata/Sentinel-2/MSI/L2A/2021/01/11/S2A_MSIL2A_20210111T131241_N0214_R138_T23KPQ_20210111T160140.SAFE","uuid":"0a1b2c3d"},"source_id":"S2A_MSIL2A_20210111T131241_N0214_R138_T23KPQ_20210111T160140","tags":{"ingestionDate":"20210112"},"wkt":"POLYGON ((8.602359 58.724068,12.720232 59.141727,13.151229 57.523666,9.198775 57.110802,8.602359 58.724068))"}}],"properties":{"aoi":"niteroi"}}` {
		t.Error("wrong geojson got: " + string(geojson))
	}
	newScenes := Scenes{}
	if err := json.Unmarshal(geojson, &newScenes); err != nil {
		t.Error(err)
	}
	if len(newScenes.Scenes) != len(scenes.Scenes) {
		t.Errorf("expecting %d, found %d scenes", len(scenes.Scenes), len(newScenes.Scenes))
	}
	if newScenes.Properties["aoi"] != "niteroi" {
		t.Errorf("collection properties lost")
	}
	for i, scene := range scenes.Scenes {
		s1, err := json.Marshal(newScenes.Scenes[i])
		if err != nil {
			t.Error(err)
		}
		s2, err := json.Marshal(scene)
		if err != nil {
			t.Error(err)
		}
		if string(s1) != string(s2) {
			t.Errorf("expecting scene %s found %s", scenes.Scenes[i].SourceID, newScenes.Scenes[i].SourceID)
		}
	}
}

func TestAutoFill(t *testing.T) {
	scene := Scene{Scene: common.Scene{SourceID: "S2B_MSIL2A_20210106T131249_N0214_R138_T23KPQ_20210106T153441"}}
	scene.AutoFill()
	if scene.ProductName != "S2B_MSIL2A_20210106T131249_R138_T23KPQ" {
		t.Errorf("wrong ProductName: %s", scene.ProductName)
	}
	if scene.Tags[common.TagConstellation] != "SENTINEL2" {
		t.Errorf("wrong constellation tag: %s", scene.Tags[common.TagConstellation])
	}
	if scene.Tags[common.TagSatellite] != "SENTINEL2B" {
		t.Errorf("wrong satellite tag: %s", scene.Tags[common.TagSatellite])
	}
	if scene.Tags[common.TagTile] != "T23KPQ" {
		t.Errorf("wrong tile tag: %s", scene.Tags[common.TagTile])
	}

	legacy := Scene{Scene: common.Scene{SourceID: "S2A_OPER_PRD_MSIL1C_PDMC_20160607T013951_R031_V20160606T033641_20160606T033641"}}
	legacy.AutoFill()
	if legacy.ProductName != legacy.SourceID {
		t.Errorf("wrong legacy ProductName: %s", legacy.ProductName)
	}

	notS2 := Scene{Scene: common.Scene{SourceID: "LC09_L1GT_166003_20250603_20250603_02_T2"}}
	notS2.AutoFill()
	if notS2.ProductName != "" || notS2.Tags != nil {
		t.Errorf("AutoFill should ignore non-Sentinel2 products")
	}
}

func TestWriteCSV(t *testing.T) {
	scenes := Scenes{
		Scenes: []*Scene{
			{Scene: common.Scene{
				SourceID: "S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552",
				Data: common.SceneAttrs{
					UUID:       "0a1b2c3d",
					Date:       time.Date(2023, 6, 3, 13, 12, 39, 24000000, time.UTC),
					EndDate:    time.Date(2023, 6, 3, 13, 12, 39, 24000000, time.UTC),
					CloudCover: 12.5,
					Online:     true,
					Size:       805306368,
					S3Path:     "/eodata/Sentinel-2/MSI/L2A/2023/06/03/S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552.SAFE",
				},
			}},
			{Scene: common.Scene{
				SourceID: "S2A_MSIL2A_20230601T131251_N0509_R138_T23KPQ_20230601T144409",
				Data:     common.SceneAttrs{CloudCover: -1},
			}},
		},
	}

	buf := bytes.Buffer{}
	if err := scenes.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	expected := "id,name,start,end,collection,cloud,online,size_bytes,s3_path\n" +
		"0a1b2c3d,S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552.SAFE,2023-06-03T13:12:39Z,2023-06-03T13:12:39Z,SENTINEL-2,12.5,true,805306368,/eodata/Sentinel-2/MSI/L2A/2023/06/03/S2B_MSIL2A_20230603T131239_N0509_R138_T23KPQ_20230603T152552.SAFE\n" +
		",S2A_MSIL2A_20230601T131251_N0509_R138_T23KPQ_20230601T144409.SAFE,,,SENTINEL-2,,false,,\n"
	if buf.String() != expected {
		t.Errorf("wrong csv, got:\n%s", buf.String())
	}
}
