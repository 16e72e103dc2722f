package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/fibertrace/internal/app"
	"github.com/okian/fibertrace/internal/domain/model"
)

// SampleDependencies defines the sample operations used by SamplesHandler.
type SampleDependencies interface {
	SubmitSample(ctx context.Context, sub service.Submission) (service.SubmitResult, error)
	ListSamples(ctx context.Context) ([]service.SampleView, error)
	GetSample(ctx context.Context, id string) (service.SampleView, error)
	UpdateSample(ctx context.Context, id string, sub service.Submission) (service.SampleView, error)
	DeleteSample(ctx context.Context, id, actor string) error
	RefreshDataset(ctx context.Context) (int, error)
}

// sampleValidate checks sample request bodies. Field names in errors use the
// JSON tag.
var sampleValidate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("ashcolor", func(fl validator.FieldLevel) bool {
		return model.ValidColor(fl.Field().String())
	})
	return v
}()

// sampleRequest mirrors the OpenAPI schema for POST /samples and
// PUT /samples/{id}. Primary percentages default to 0 when omitted.
type sampleRequest struct {
	SubmissionID string `json:"submission_id" validate:"omitempty,max=128"`
	LotNumber    string `json:"lot_number" validate:"required,max=64"`

	PercentWhite   *float64 `json:"percent_white" validate:"omitempty,gte=0,lte=100"`
	PercentBlack   *float64 `json:"percent_black" validate:"omitempty,gte=0,lte=100"`
	PercentDenim   *float64 `json:"percent_denim" validate:"omitempty,gte=0,lte=100"`
	PercentNatural *float64 `json:"percent_natural" validate:"omitempty,gte=0,lte=100"`

	SignalCount       *float64 `json:"signal_count" validate:"required,gte=0"`
	TrueMarkerPercent *float64 `json:"true_marker_percent" validate:"required,gte=0,lte=100"`
	AshColor          string   `json:"ash_color" validate:"required,ashcolor"`

	Cotton           *float64 `json:"cotton" validate:"omitempty,gte=0,lte=100"`
	MMCF             *float64 `json:"mmcf" validate:"omitempty,gte=0,lte=100"`
	PET              *float64 `json:"pet" validate:"omitempty,gte=0,lte=100"`
	PA               *float64 `json:"pa" validate:"omitempty,gte=0,lte=100"`
	Acrylic          *float64 `json:"acrylic" validate:"omitempty,gte=0,lte=100"`
	RecycledCotton   *float64 `json:"recycled_cotton" validate:"omitempty,gte=0,lte=100"`
	MastermixLoading *float64 `json:"mastermix_loading" validate:"omitempty,gte=0,lte=100"`
	Enrichment       *float64 `json:"enrichment" validate:"omitempty,gte=0,lte=100"`
	FurnaceTemp      *float64 `json:"furnace_temp" validate:"omitempty,gte=0"`
	FurnaceTime      *float64 `json:"furnace_time" validate:"omitempty,gte=0"`
	ScannerSetting   string   `json:"scanner_setting" validate:"max=64"`
}

func (req sampleRequest) validate() error {
	err := sampleValidate.Struct(req)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (req sampleRequest) sample() model.Sample {
	return model.Sample{
		LotNumber:         strings.TrimSpace(req.LotNumber),
		PercentWhite:      deref(req.PercentWhite),
		PercentBlack:      deref(req.PercentBlack),
		PercentDenim:      deref(req.PercentDenim),
		PercentNatural:    deref(req.PercentNatural),
		SignalCount:       deref(req.SignalCount),
		TrueMarkerPercent: deref(req.TrueMarkerPercent),
		AshColor:          req.AshColor,
		Cotton:            req.Cotton,
		MMCF:              req.MMCF,
		PET:               req.PET,
		PA:                req.PA,
		Acrylic:           req.Acrylic,
		RecycledCotton:    req.RecycledCotton,
		MastermixLoading:  req.MastermixLoading,
		Enrichment:        req.Enrichment,
		FurnaceTemp:       req.FurnaceTemp,
		FurnaceTime:       req.FurnaceTime,
		ScannerSetting:    strings.TrimSpace(req.ScannerSetting),
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

type submitResponse struct {
	Status    string             `json:"status"`
	Duplicate bool               `json:"duplicate"`
	Sample    service.SampleView `json:"sample"`
}

type refreshResponse struct {
	Rows int `json:"rows"`
}

// SamplesHandler handles reference-sample requests.
type SamplesHandler struct {
	deps SampleDependencies
	opts options
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(deps SampleDependencies, o options) *SamplesHandler {
	return &SamplesHandler{deps: deps, opts: o}
}

func (h *SamplesHandler) identity(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(h.opts.identityHeader))
}

func (h *SamplesHandler) decode(w http.ResponseWriter, r *http.Request, op string) (sampleRequest, error) {
	var req sampleRequest
	if err := decodeJSON(w, r, h.opts.maxBodyBytes, &req); err != nil {
		return req, WrapKind(op, ErrBadRequest, err)
	}
	if err := req.validate(); err != nil {
		return req, WrapKind(op, service.ErrInvalidSample, err)
	}
	return req, nil
}

// HandleCreate handles POST /samples requests.
func (h *SamplesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_sample"
	req, err := h.decode(w, r, op)
	if err != nil {
		writeError(w, r, h.opts.logger, err)
		return
	}
	res, err := h.deps.SubmitSample(r.Context(), service.Submission{
		SubmissionID: req.SubmissionID,
		SubmittedBy:  h.identity(r),
		Sample:       req.sample(),
	})
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, submitResponse{Status: "duplicate", Duplicate: true, Sample: res.Sample})
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Status: "created", Sample: res.Sample})
}

// HandleList handles GET /samples requests.
func (h *SamplesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_samples"
	samples, err := h.deps.ListSamples(r.Context())
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// HandleGet handles GET /samples/{id} requests.
func (h *SamplesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_sample"
	sample, err := h.deps.GetSample(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// HandleUpdate handles PUT /samples/{id} requests.
func (h *SamplesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_sample"
	req, err := h.decode(w, r, op)
	if err != nil {
		writeError(w, r, h.opts.logger, err)
		return
	}
	sample, err := h.deps.UpdateSample(r.Context(), r.PathValue("id"), service.Submission{
		SubmittedBy: h.identity(r),
		Sample:      req.sample(),
	})
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// HandleDelete handles DELETE /samples/{id} requests.
func (h *SamplesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_sample"
	if err := h.deps.DeleteSample(r.Context(), r.PathValue("id"), h.identity(r)); err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefresh handles POST /samples/refresh requests.
func (h *SamplesHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_samples"
	n, err := h.deps.RefreshDataset(r.Context())
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Rows: n})
}
