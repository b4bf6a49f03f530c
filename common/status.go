package common

//go:generate go run github.com/dmarkham/enumer -json -type Status -trimprefix Status

// Status of a scene or a band in the preparation pipeline
type Status int

const (
	StatusNEW Status = iota
	StatusPENDING
	StatusDONE
	StatusFAILED
	StatusSKIPPED
)
