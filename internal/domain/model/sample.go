// Package model contains domain models passed between layers.
package model

import "time"

// Sample is a reference sample: a physical blend with a measured signal count
// and its known marker-fiber content.
type Sample struct {
	ID        string `json:"id"`
	LotNumber string `json:"lot_number"`

	PercentWhite   float64 `json:"percent_white"`
	PercentBlack   float64 `json:"percent_black"`
	PercentDenim   float64 `json:"percent_denim"`
	PercentNatural float64 `json:"percent_natural"`

	SignalCount       float64 `json:"signal_count"`
	TrueMarkerPercent float64 `json:"true_marker_percent"`
	AshColor          string  `json:"ash_color"`

	// Secondary composition and process fields. Nil means not recorded.
	Cotton           *float64 `json:"cotton,omitempty"`
	MMCF             *float64 `json:"mmcf,omitempty"`
	PET              *float64 `json:"pet,omitempty"`
	PA               *float64 `json:"pa,omitempty"`
	Acrylic          *float64 `json:"acrylic,omitempty"`
	RecycledCotton   *float64 `json:"recycled_cotton,omitempty"`
	MastermixLoading *float64 `json:"mastermix_loading,omitempty"`
	Enrichment       *float64 `json:"enrichment,omitempty"`
	FurnaceTemp      *float64 `json:"furnace_temp,omitempty"`
	FurnaceTime      *float64 `json:"furnace_time,omitempty"`
	ScannerSetting   string   `json:"scanner_setting,omitempty"`

	SubmittedBy string    `json:"submitted_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Blend returns the primary fiber composition of the sample.
func (s Sample) Blend() Blend {
	return Blend{
		White:   s.PercentWhite,
		Black:   s.PercentBlack,
		Denim:   s.PercentDenim,
		Natural: s.PercentNatural,
	}
}

// Percent returns the sample's share of fiber f.
func (s Sample) Percent(f FiberType) float64 {
	return s.Blend().Percent(f)
}
