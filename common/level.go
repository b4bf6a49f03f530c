package common

import (
	"fmt"
	"strings"
)

//go:generate go run github.com/dmarkham/enumer -json -type Level -trimprefix Level

// Level is the Sentinel-2 processing level of a product
type Level int

const (
	LevelUnknown Level = iota
	LevelL1C
	LevelL2A
)

// ProductType returns the catalog product type of the level
func (l Level) ProductType() string {
	switch l {
	case LevelL1C:
		return "S2MSI1C"
	case LevelL2A:
		return "S2MSI2A"
	}
	return ""
}

// ParseLevel normalizes the user or catalog spelling of a processing level
// (L2A, Level-2A, S2MSI2A...)
func ParseLevel(input string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "L1C", "LEVEL-1C", "S2MSI1C", "1C":
		return LevelL1C, nil
	case "L2A", "LEVEL-2A", "S2MSI2A", "2A":
		return LevelL2A, nil
	}
	return LevelUnknown, fmt.Errorf("ParseLevel: unsupported processing level %q", input)
}
