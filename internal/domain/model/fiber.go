package model

import (
	"fmt"
	"strings"
)

// FiberType names one of the four primary fiber classes of a blend.
type FiberType string

// Primary fiber types.
const (
	FiberWhite   FiberType = "white"
	FiberBlack   FiberType = "black"
	FiberDenim   FiberType = "denim"
	FiberNatural FiberType = "natural"
)

// FiberTypes lists the primary fiber types in reporting order.
var FiberTypes = []FiberType{FiberWhite, FiberBlack, FiberDenim, FiberNatural}

// ParseFiberType maps a case-insensitive name to a FiberType.
func ParseFiberType(name string) (FiberType, error) {
	f := FiberType(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range FiberTypes {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFiber, name)
}

func (f FiberType) String() string { return string(f) }

// Column returns the record column holding this fiber's percentage.
func (f FiberType) Column() string { return "percent_" + string(f) }

// Blend is a four-fiber composition in percent.
type Blend struct {
	White   float64 `json:"white"`
	Black   float64 `json:"black"`
	Denim   float64 `json:"denim"`
	Natural float64 `json:"natural"`
}

// Percent returns the share of fiber f.
func (b Blend) Percent(f FiberType) float64 {
	switch f {
	case FiberWhite:
		return b.White
	case FiberBlack:
		return b.Black
	case FiberDenim:
		return b.Denim
	case FiberNatural:
		return b.Natural
	default:
		return 0
	}
}

// Sum returns the total of the four percentages.
func (b Blend) Sum() float64 {
	return b.White + b.Black + b.Denim + b.Natural
}
