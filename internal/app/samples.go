package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/fibertrace/internal/adapters/repository"
	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/pkg/logger"
	"github.com/okian/fibertrace/pkg/metrics"
)

// Submission is a sample entered by a user. SubmissionID is an optional
// client key that makes retries idempotent.
type Submission struct {
	SubmissionID string
	SubmittedBy  string
	Sample       model.Sample
}

// SampleView is a stored sample with derived fields.
type SampleView struct {
	model.Sample
	// AshLuminance is nil when the ash colour is missing or malformed.
	AshLuminance *float64 `json:"ash_luminance"`
}

// SubmitResult is the outcome of SubmitSample.
type SubmitResult struct {
	Sample    SampleView
	Duplicate bool
}

func newView(s model.Sample) SampleView {
	v := SampleView{Sample: s}
	if l, err := model.AshLuminance(s.AshColor); err == nil {
		v.AshLuminance = &l
	}
	return v
}

// ValidateSample checks a sample at entry time: lot number present, ash
// colour a #RRGGBB value, signal non-negative, marker percentage and every
// fiber percentage within [0, 100], primaries summing to 100 within tolerance.
func ValidateSample(s model.Sample, tolerance float64) error {
	if strings.TrimSpace(s.LotNumber) == "" {
		return fmt.Errorf("%w: lot number is required", ErrInvalidSample)
	}
	if !model.ValidColor(s.AshColor) {
		return fmt.Errorf("%w: ash color %q is not #RRGGBB", ErrInvalidSample, s.AshColor)
	}
	if !inPercent(s.TrueMarkerPercent) {
		return fmt.Errorf("%w: true marker percent must be between 0 and 100", ErrInvalidSample)
	}
	q := estimator.Query{Signal: s.SignalCount, Blend: s.Blend()}
	if err := estimator.ValidateQuery(q, tolerance); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}
	secondary := map[string]*float64{
		model.ColCotton:           s.Cotton,
		model.ColMMCF:             s.MMCF,
		model.ColPET:              s.PET,
		model.ColPA:               s.PA,
		model.ColAcrylic:          s.Acrylic,
		model.ColRecycledCotton:   s.RecycledCotton,
		model.ColMastermixLoading: s.MastermixLoading,
		model.ColEnrichment:       s.Enrichment,
	}
	for name, v := range secondary {
		if v != nil && !inPercent(*v) {
			return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidSample, name)
		}
	}
	for name, v := range map[string]*float64{model.ColFurnaceTemp: s.FurnaceTemp, model.ColFurnaceTime: s.FurnaceTime} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidSample, name)
		}
	}
	return nil
}

func inPercent(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// SubmitSample validates and stores a new reference sample. A repeated
// SubmissionID returns the sample stored by the first submission.
func (s *Service) SubmitSample(ctx context.Context, sub Submission) (SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.SubmitSample",
		trace.WithAttributes(attribute.String("sample.lot_number", sub.Sample.LotNumber)))
	defer span.End()

	store, est, err := s.components()
	if err != nil {
		return SubmitResult{}, fail(span, err)
	}
	if s.requireIdentity && strings.TrimSpace(sub.SubmittedBy) == "" {
		return SubmitResult{}, fail(span, ErrIdentityRequired)
	}
	if err := ValidateSample(sub.Sample, est.Options().Tolerance); err != nil {
		s.logger.Debug(ctx, "rejected sample", logger.Error(err))
		return SubmitResult{}, fail(span, err)
	}

	sample := sub.Sample
	sample.ID = s.newID()
	sample.SubmittedBy = sub.SubmittedBy
	sample.CreatedAt = s.now().UTC()

	if sub.SubmissionID != "" {
		existing, seen := s.deduper.Claim(ctx, sub.SubmissionID, sample.ID)
		if seen {
			metrics.RecordSampleDuplicate()
			s.logger.Debug(ctx, "duplicate submission",
				logger.String("submissionID", sub.SubmissionID),
				logger.String("sampleID", existing),
			)
			span.SetAttributes(attribute.Bool("sample.duplicate", true))
			// The first submission may still be in flight.
			view := SampleView{Sample: model.Sample{ID: existing}}
			if rec, err := store.Get(ctx, existing); err == nil {
				if stored, err := model.SampleFromRecord(rec); err == nil {
					view = newView(stored)
				}
			}
			return SubmitResult{Sample: view, Duplicate: true}, nil
		}
	}

	if err := store.Insert(ctx, sample.Record()); err != nil {
		if sub.SubmissionID != "" {
			s.deduper.Release(ctx, sub.SubmissionID)
		}
		s.logger.Error(ctx, "failed to insert sample", logger.String("sampleID", sample.ID), logger.Error(err))
		metrics.RecordErrorByComponent("service", "insert")
		return SubmitResult{}, fail(span, fmt.Errorf("%w: %w", ErrDataWrite, err))
	}
	metrics.RecordSampleWritten("insert")
	span.SetAttributes(attribute.String("sample.id", sample.ID))
	s.logger.Info(ctx, "sample stored",
		logger.String("sampleID", sample.ID),
		logger.String("lotNumber", sample.LotNumber),
		logger.String("submittedBy", sample.SubmittedBy),
	)
	return SubmitResult{Sample: newView(sample)}, nil
}

// ListSamples returns every stored sample that coerces cleanly.
func (s *Service) ListSamples(ctx context.Context) ([]SampleView, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListSamples")
	defer span.End()

	store, _, err := s.components()
	if err != nil {
		return nil, fail(span, err)
	}
	samples, err := s.loadSamples(ctx, store)
	if err != nil {
		return nil, fail(span, err)
	}
	out := make([]SampleView, len(samples))
	for i, smp := range samples {
		out[i] = newView(smp)
	}
	return out, nil
}

// GetSample returns one sample by id.
func (s *Service) GetSample(ctx context.Context, id string) (SampleView, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetSample", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	store, _, err := s.components()
	if err != nil {
		return SampleView{}, fail(span, err)
	}
	smp, err := s.getSample(ctx, store, id)
	if err != nil {
		return SampleView{}, fail(span, err)
	}
	return newView(smp), nil
}

func (s *Service) getSample(ctx context.Context, store repository.Store, id string) (model.Sample, error) {
	rec, err := store.Get(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return model.Sample{}, fmt.Errorf("%w: %s", ErrSampleNotFound, id)
		}
		return model.Sample{}, fmt.Errorf("%w: %w", ErrDataFetch, err)
	}
	smp, err := model.SampleFromRecord(rec)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: stored row %s: %w", ErrDataFetch, id, err)
	}
	return smp, nil
}

// UpdateSample replaces the editable fields of sample id. The id, creation
// time and original submitter are kept.
func (s *Service) UpdateSample(ctx context.Context, id string, sub Submission) (SampleView, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpdateSample", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	store, est, err := s.components()
	if err != nil {
		return SampleView{}, fail(span, err)
	}
	if s.requireIdentity && strings.TrimSpace(sub.SubmittedBy) == "" {
		return SampleView{}, fail(span, ErrIdentityRequired)
	}
	if err := ValidateSample(sub.Sample, est.Options().Tolerance); err != nil {
		return SampleView{}, fail(span, err)
	}
	current, err := s.getSample(ctx, store, id)
	if err != nil {
		return SampleView{}, fail(span, err)
	}

	next := sub.Sample
	next.ID = current.ID
	next.SubmittedBy = current.SubmittedBy
	next.CreatedAt = current.CreatedAt
	rec := next.Record()
	delete(rec, model.ColID)
	delete(rec, model.ColSubmittedBy)
	delete(rec, model.ColCreatedAt)

	if err := store.Update(ctx, id, rec); err != nil {
		if repository.IsNotFound(err) {
			return SampleView{}, fail(span, fmt.Errorf("%w: %s", ErrSampleNotFound, id))
		}
		metrics.RecordErrorByComponent("service", "update")
		return SampleView{}, fail(span, fmt.Errorf("%w: %w", ErrDataWrite, err))
	}
	metrics.RecordSampleWritten("update")
	s.logger.Info(ctx, "sample updated", logger.String("sampleID", id), logger.String("editedBy", sub.SubmittedBy))
	return newView(next), nil
}

// DeleteSample removes sample id. actor is the identity performing the
// deletion.
func (s *Service) DeleteSample(ctx context.Context, id, actor string) error {
	ctx, span := s.tracer.Start(ctx, "service.DeleteSample", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	store, _, err := s.components()
	if err != nil {
		return fail(span, err)
	}
	if s.requireIdentity && strings.TrimSpace(actor) == "" {
		return fail(span, ErrIdentityRequired)
	}
	if err := store.Delete(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return fail(span, fmt.Errorf("%w: %s", ErrSampleNotFound, id))
		}
		metrics.RecordErrorByComponent("service", "delete")
		return fail(span, fmt.Errorf("%w: %w", ErrDataWrite, err))
	}
	metrics.RecordSampleWritten("delete")
	s.logger.Info(ctx, "sample deleted", logger.String("sampleID", id), logger.String("deletedBy", actor))
	return nil
}

// RefreshDataset drops any cached dataset and reloads it. It returns the
// number of rows read.
func (s *Service) RefreshDataset(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "service.RefreshDataset")
	defer span.End()

	store, _, err := s.components()
	if err != nil {
		return 0, fail(span, err)
	}
	var rows []model.Record
	if r, ok := store.(repository.Refresher); ok {
		rows, err = r.Refresh(ctx)
	} else {
		rows, err = store.List(ctx)
	}
	if err != nil {
		s.logger.Error(ctx, "dataset refresh failed", logger.Error(err))
		return 0, fail(span, fmt.Errorf("%w: %w", ErrDataFetch, err))
	}
	metrics.UpdateDatasetSize(len(rows))
	s.logger.Info(ctx, "dataset refreshed", logger.Int("rows", len(rows)))
	return len(rows), nil
}

// loadSamples reads the dataset and coerces it, dropping malformed rows.
func (s *Service) loadSamples(ctx context.Context, store repository.Store) ([]model.Sample, error) {
	rows, err := store.List(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to fetch reference data", logger.Error(err))
		metrics.RecordErrorByComponent("service", "fetch")
		return nil, fmt.Errorf("%w: %w", ErrDataFetch, err)
	}
	samples, dropped := model.CoerceRecords(rows)
	metrics.UpdateDatasetSize(len(rows))
	metrics.RecordRowsDiscarded(dropped)
	if dropped > 0 {
		s.logger.Warn(ctx, "dropped malformed reference rows",
			logger.Int("dropped", dropped),
			logger.Int("rows", len(rows)),
		)
	}
	return samples, nil
}

// fail marks span as failed and returns err.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
