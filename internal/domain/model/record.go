package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one untyped row of the reference-sample table as returned by a
// data source. Columns may be missing and numbers may arrive as strings.
type Record map[string]any

// Column names of the reference-sample table.
const (
	ColID                = "id"
	ColLotNumber         = "lot_number"
	ColPercentWhite      = "percent_white"
	ColPercentBlack      = "percent_black"
	ColPercentDenim      = "percent_denim"
	ColPercentNatural    = "percent_natural"
	ColSignalCount       = "signal_count"
	ColTrueMarkerPercent = "true_marker_percent"
	ColAshColor          = "ash_color"
	ColCotton            = "cotton"
	ColMMCF              = "mmcf"
	ColPET               = "pet"
	ColPA                = "pa"
	ColAcrylic           = "acrylic"
	ColRecycledCotton    = "recycled_cotton"
	ColMastermixLoading  = "mastermix_loading"
	ColEnrichment        = "enrichment"
	ColFurnaceTemp       = "furnace_temp"
	ColFurnaceTime       = "furnace_time"
	ColScannerSetting    = "scanner_setting"
	ColSubmittedBy       = "submitted_by"
	ColCreatedAt         = "created_at"
)

// Columns lists every column in insert order.
var Columns = []string{
	ColID, ColLotNumber,
	ColPercentWhite, ColPercentBlack, ColPercentDenim, ColPercentNatural,
	ColSignalCount, ColTrueMarkerPercent, ColAshColor,
	ColCotton, ColMMCF, ColPET, ColPA, ColAcrylic, ColRecycledCotton,
	ColMastermixLoading, ColEnrichment, ColFurnaceTemp, ColFurnaceTime,
	ColScannerSetting, ColSubmittedBy, ColCreatedAt,
}

// Record flattens the sample into a row keyed by column name. Unset
// secondary fields are stored as nil.
func (s Sample) Record() Record {
	return Record{
		ColID:                s.ID,
		ColLotNumber:         s.LotNumber,
		ColPercentWhite:      s.PercentWhite,
		ColPercentBlack:      s.PercentBlack,
		ColPercentDenim:      s.PercentDenim,
		ColPercentNatural:    s.PercentNatural,
		ColSignalCount:       s.SignalCount,
		ColTrueMarkerPercent: s.TrueMarkerPercent,
		ColAshColor:          s.AshColor,
		ColCotton:            optional(s.Cotton),
		ColMMCF:              optional(s.MMCF),
		ColPET:               optional(s.PET),
		ColPA:                optional(s.PA),
		ColAcrylic:           optional(s.Acrylic),
		ColRecycledCotton:    optional(s.RecycledCotton),
		ColMastermixLoading:  optional(s.MastermixLoading),
		ColEnrichment:        optional(s.Enrichment),
		ColFurnaceTemp:       optional(s.FurnaceTemp),
		ColFurnaceTime:       optional(s.FurnaceTime),
		ColScannerSetting:    s.ScannerSetting,
		ColSubmittedBy:       s.SubmittedBy,
		ColCreatedAt:         s.CreatedAt,
	}
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// SampleFromRecord converts an untyped row into a Sample. Signal count, true
// marker percentage and the four primary fiber percentages are required and
// must coerce to finite numbers; every other column is absent-tolerant.
func SampleFromRecord(r Record) (Sample, error) {
	var (
		s   Sample
		err error
	)
	required := []struct {
		col string
		dst *float64
	}{
		{ColSignalCount, &s.SignalCount},
		{ColTrueMarkerPercent, &s.TrueMarkerPercent},
		{ColPercentWhite, &s.PercentWhite},
		{ColPercentBlack, &s.PercentBlack},
		{ColPercentDenim, &s.PercentDenim},
		{ColPercentNatural, &s.PercentNatural},
	}
	for _, f := range required {
		v, ok, cerr := r.Float(f.col)
		if cerr != nil {
			return Sample{}, cerr
		}
		if !ok {
			return Sample{}, fmt.Errorf("%w: %s", ErrMissingField, f.col)
		}
		*f.dst = v
	}

	optionals := []struct {
		col string
		dst **float64
	}{
		{ColCotton, &s.Cotton},
		{ColMMCF, &s.MMCF},
		{ColPET, &s.PET},
		{ColPA, &s.PA},
		{ColAcrylic, &s.Acrylic},
		{ColRecycledCotton, &s.RecycledCotton},
		{ColMastermixLoading, &s.MastermixLoading},
		{ColEnrichment, &s.Enrichment},
		{ColFurnaceTemp, &s.FurnaceTemp},
		{ColFurnaceTime, &s.FurnaceTime},
	}
	for _, f := range optionals {
		// Secondary fields that fail to coerce are treated as absent.
		if v, ok, cerr := r.Float(f.col); cerr == nil && ok {
			val := v
			*f.dst = &val
		}
	}

	s.ID = r.String(ColID)
	s.LotNumber = r.String(ColLotNumber)
	s.AshColor = r.String(ColAshColor)
	s.ScannerSetting = r.String(ColScannerSetting)
	s.SubmittedBy = r.String(ColSubmittedBy)
	if s.CreatedAt, err = r.Time(ColCreatedAt); err != nil {
		s.CreatedAt = time.Time{}
	}
	return s, nil
}

// CoerceRecords converts rows into samples, dropping the rows whose required
// fields are absent or not numeric. It returns the kept samples and the number
// of dropped rows.
func CoerceRecords(records []Record) ([]Sample, int) {
	samples := make([]Sample, 0, len(records))
	dropped := 0
	for _, r := range records {
		s, err := SampleFromRecord(r)
		if err != nil {
			dropped++
			continue
		}
		samples = append(samples, s)
	}
	return samples, dropped
}

// Float reads column col as a number. ok is false when the column is absent,
// nil or an empty string. A present value that cannot be read as a finite
// number yields ErrInvalidField.
func (r Record) Float(col string) (v float64, ok bool, err error) {
	raw, present := r[col]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int16:
		v = float64(x)
	case int32:
		v = float64(x)
	case int64:
		v = float64(x)
	case uint32:
		v = float64(x)
	case uint64:
		v = float64(x)
	case json.Number:
		if v, err = x.Float64(); err != nil {
			return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidField, col, x.String())
		}
	case []byte:
		return r.parseFloat(col, string(x))
	case string:
		return r.parseFloat(col, x)
	default:
		return 0, false, fmt.Errorf("%w: %s has type %T", ErrInvalidField, col, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: %s is not finite", ErrInvalidField, col)
	}
	return v, true, nil
}

func (r Record) parseFloat(col, s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidField, col, s)
	}
	return v, true, nil
}

// String reads column col as text; absent or nil columns read as "".
func (r Record) String(col string) string {
	switch x := r[col].(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Time reads column col as a timestamp. Strings are parsed as RFC 3339.
func (r Record) Time(col string) (time.Time, error) {
	switch x := r[col].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case string:
		if x == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s=%q", ErrInvalidField, col, x)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s has type %T", ErrInvalidField, col, x)
	}
}
