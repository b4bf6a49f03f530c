package common

import (
	"testing"
	"time"
)

func checkKeyValue(t *testing.T, format map[string]string, key, value string) {
	if v, ok := format[key]; !ok {
		t.Errorf("key %s not found", key)
	} else if v != value {
		t.Errorf("expected %s for key %s, got %s", value, key, v)
	}
}

func TestInfo(t *testing.T) {
	if _, err := Info("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T12485"); err == nil {
		t.Errorf("too short file name")
	}
	if _, err := Info("S1A_IW_SLC__1SDV_20190115T170106_20190115T170133_025491_02D361_7F7C"); err == nil {
		t.Errorf("not a Sentinel2 product")
	}
	if format, err := Info("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859.SAFE"); err != nil {
		t.Errorf(err.Error())
	} else {
		checkKeyValue(t, format, "MISSION_ID", "S2B")
		checkKeyValue(t, format, "PRODUCT_LEVEL", "L1C")
		checkKeyValue(t, format, "DATE", "20190108")
		checkKeyValue(t, format, "YEAR", "2019")
		checkKeyValue(t, format, "MONTH", "01")
		checkKeyValue(t, format, "DAY", "08")
		checkKeyValue(t, format, "TIME", "104429")
		checkKeyValue(t, format, "HOUR", "10")
		checkKeyValue(t, format, "MINUTE", "44")
		checkKeyValue(t, format, "SECOND", "29")
		checkKeyValue(t, format, "PDGS", "0207")
		checkKeyValue(t, format, "ORBIT", "008")
		checkKeyValue(t, format, "TILE", "T32UNF")
		checkKeyValue(t, format, "LATITUDE_BAND", "32")
		checkKeyValue(t, format, "GRID_SQUARE", "U")
		checkKeyValue(t, format, "GRANULE_ID", "NF")
		checkKeyValue(t, format, "PRODUCT_DISC", "20190108T124859")
	}
	if format, err := Info("S2A_OPER_PRD_MSIL1C_PDMC_20160607T013951_R031_V20160606T033641_20160606T033641"); err != nil {
		t.Errorf(err.Error())
	} else {
		checkKeyValue(t, format, "MISSION_ID", "S2A")
		checkKeyValue(t, format, "PRODUCT_LEVEL", "L1C")
		checkKeyValue(t, format, "ORBIT", "031")
	}
}

func TestGetDateFromProductId(t *testing.T) {
	date, err := GetDateFromProductId("S2B_MSIL2A_20210106T131249_N0214_R138_T23KPQ_20210106T153441")
	if err != nil {
		t.Fatal(err)
	}
	if !date.Equal(time.Date(2021, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2021-01-06, got %v", date)
	}
}

func TestFormatBrackets(t *testing.T) {
	format, err := Info("S2B_MSIL2A_20210106T131249_N0214_R138_T23KPQ_20210106T153441")
	if err != nil {
		t.Fatal(err)
	}
	pattern := "tiles/{LATITUDE_BAND}/{GRID_SQUARE}/{GRANULE_ID}/{SCENE}.SAFE"
	expected := "tiles/23/K/PQ/S2B_MSIL2A_20210106T131249_N0214_R138_T23KPQ_20210106T153441.SAFE"
	if s := FormatBrackets(pattern, format); s != expected {
		t.Errorf("expected %s, got %s", expected, s)
	}
	pattern = "Sentinel-2/MSI/{PRODUCT_LEVEL}/{YEAR}/{MONTH}/{DAY}/{SCENE}.SAFE"
	expected = "Sentinel-2/MSI/L2A/2021/01/06/S2B_MSIL2A_20210106T131249_N0214_R138_T23KPQ_20210106T153441.SAFE"
	if s := FormatBrackets(pattern, format); s != expected {
		t.Errorf("expected %s, got %s", expected, s)
	}
}

func TestNormalizeBand(t *testing.T) {
	for input, expected := range map[string]string{
		"B02": "B02",
		"b02": "B02",
		"2":   "B02",
		"b8a": "B8A",
		"8A":  "B8A",
		"B12": "B12",
	} {
		if band, err := NormalizeBand(input); err != nil {
			t.Errorf("NormalizeBand(%s): %v", input, err)
		} else if band != expected {
			t.Errorf("NormalizeBand(%s): expected %s, got %s", input, expected, band)
		}
	}
	if _, err := NormalizeBand("B42"); err == nil {
		t.Errorf("NormalizeBand(B42): expected an error")
	}
	if _, err := NormalizeBand("TCI"); err == nil {
		t.Errorf("NormalizeBand(TCI): expected an error")
	}
}

func TestParseBands(t *testing.T) {
	bands, err := ParseBands("")
	if err != nil {
		t.Fatal(err)
	}
	if bands != nil {
		t.Errorf("expected no selection, got %v", bands)
	}
	bands, err = ParseBands("b04,b03,B02,b04")
	if err != nil {
		t.Fatal(err)
	}
	if len(bands) != 3 || bands[0] != "B04" || bands[1] != "B03" || bands[2] != "B02" {
		t.Errorf("unexpected bands %v", bands)
	}
	if _, err = ParseBands("b02,b42"); err == nil {
		t.Errorf("expected an error")
	}
}

func TestParseLevel(t *testing.T) {
	for input, expected := range map[string]Level{
		"L1C":      LevelL1C,
		"l2a":      LevelL2A,
		"Level-2A": LevelL2A,
		"S2MSI1C":  LevelL1C,
		"S2MSI2A":  LevelL2A,
	} {
		if level, err := ParseLevel(input); err != nil {
			t.Errorf("ParseLevel(%s): %v", input, err)
		} else if level != expected {
			t.Errorf("ParseLevel(%s): expected %s, got %s", input, expected, level)
		}
	}
	if _, err := ParseLevel("L3"); err == nil {
		t.Errorf("ParseLevel(L3): expected an error")
	}
	if pt := LevelL2A.ProductType(); pt != "S2MSI2A" {
		t.Errorf("ProductType: got %s", pt)
	}
	if pt := LevelL1C.ProductType(); pt != "S2MSI1C" {
		t.Errorf("ProductType: got %s", pt)
	}
}
