package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/fibertrace/internal/adapters/repository"
	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/pkg/logger"
	"github.com/okian/fibertrace/pkg/metrics"
)

// Estimate outcomes recorded in metrics.
const (
	outcomeOK           = "ok"
	outcomeInvalid      = "invalid_input"
	outcomeFetchFailed  = "fetch_failed"
	outcomeEmpty        = "empty_dataset"
	outcomeNoModels     = "no_models"
	outcomeNoPrediction = "no_valid_prediction"
	outcomeError        = "error"
)

// Estimate answers a query against the current reference dataset. The query
// is validated before anything is read; models are rebuilt from a fresh
// snapshot on every call.
func (s *Service) Estimate(ctx context.Context, q estimator.Query) (estimator.Estimate, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "service.Estimate", trace.WithAttributes(
		attribute.Float64("query.signal_count", q.Signal),
		attribute.Float64("query.percent_white", q.Blend.White),
		attribute.Float64("query.percent_black", q.Blend.Black),
		attribute.Float64("query.percent_denim", q.Blend.Denim),
		attribute.Float64("query.percent_natural", q.Blend.Natural),
	))
	defer span.End()

	est, err := s.estimate(ctx, q)
	metrics.RecordEstimateLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		s.failures.Add(1)
		metrics.RecordEstimate(outcomeOf(err))
		s.logger.Warn(ctx, "estimate failed",
			logger.Float64("signal", q.Signal),
			logger.String("outcome", outcomeOf(err)),
			logger.Error(err),
		)
		return estimator.Estimate{}, fail(span, err)
	}
	s.estimates.Add(1)
	metrics.RecordEstimate(outcomeOK)
	span.SetAttributes(
		attribute.Float64("estimate.prediction", est.Prediction),
		attribute.Float64("estimate.confidence", est.Confidence),
	)
	s.logger.Debug(ctx, "estimate served",
		logger.Float64("signal", q.Signal),
		logger.Float64("prediction", est.Prediction),
		logger.Float64("confidence", est.Confidence),
	)
	return est, nil
}

func (s *Service) estimate(ctx context.Context, q estimator.Query) (estimator.Estimate, error) {
	store, est, err := s.components()
	if err != nil {
		return estimator.Estimate{}, err
	}
	if err := est.Validate(q); err != nil {
		return estimator.Estimate{}, err
	}
	models, err := s.buildModels(ctx, est, store)
	if err != nil {
		return estimator.Estimate{}, err
	}
	return est.Predict(q, models)
}

// Models returns the summaries of the fiber models trained on the current
// dataset.
func (s *Service) Models(ctx context.Context) ([]estimator.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "service.Models")
	defer span.End()

	store, est, err := s.components()
	if err != nil {
		return nil, fail(span, err)
	}
	models, err := s.buildModels(ctx, est, store)
	if err != nil {
		return nil, fail(span, err)
	}
	return models.Summaries(), nil
}

// Series returns the training points and fitted curve of one fiber model.
// steps below 2 selects the default resolution.
func (s *Service) Series(ctx context.Context, fiber model.FiberType, steps int) (estimator.Series, error) {
	ctx, span := s.tracer.Start(ctx, "service.Series", trace.WithAttributes(attribute.String("fiber", fiber.String())))
	defer span.End()

	store, est, err := s.components()
	if err != nil {
		return estimator.Series{}, fail(span, err)
	}
	models, err := s.buildModels(ctx, est, store)
	if err != nil {
		return estimator.Series{}, fail(span, err)
	}
	fm, ok := models[fiber]
	if !ok {
		return estimator.Series{}, fail(span, fmt.Errorf("%w: no %s model", estimator.ErrNoModels, fiber))
	}
	series, err := fm.Series(steps)
	if err != nil {
		return estimator.Series{}, fail(span, err)
	}
	return series, nil
}

// buildModels loads the dataset and trains every fiber model. An empty
// dataset and an empty model set are reported separately.
func (s *Service) buildModels(ctx context.Context, est *estimator.Estimator, store repository.Store) (estimator.Models, error) {
	ctx, span := s.tracer.Start(ctx, "service.buildModels")
	defer span.End()

	samples, err := s.loadSamples(ctx, store)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("dataset.samples", len(samples)))
	if len(samples) == 0 {
		return nil, fail(span, ErrEmptyDataset)
	}

	models, err := est.Build(samples)
	if err != nil {
		// Failed fibers are dropped; the rest still serve.
		s.logger.Warn(ctx, "some fiber models could not be fitted", logger.Error(err))
		metrics.RecordErrorByComponent("estimator", "fit")
		span.RecordError(err)
	}
	if len(models) == 0 {
		if err != nil {
			return nil, fail(span, fmt.Errorf("%w: %w", estimator.ErrNoModels, err))
		}
		return nil, fail(span, estimator.ErrNoModels)
	}
	for _, f := range models.Fibers() {
		fm := models[f]
		metrics.RecordModelBuilt(f.String(), fm.Model.RMSE)
		s.logger.Debug(ctx, "fiber model built",
			logger.String("fiber", f.String()),
			logger.Int("samples", fm.Model.N),
			logger.Float64("rmse", fm.Model.RMSE),
			logger.Float64("r2", fm.Model.RSquared),
		)
	}
	span.SetAttributes(attribute.Int("models", len(models)))
	return models, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, estimator.ErrInvalidInput):
		return outcomeInvalid
	case errors.Is(err, ErrDataFetch):
		return outcomeFetchFailed
	case errors.Is(err, ErrEmptyDataset):
		return outcomeEmpty
	case errors.Is(err, estimator.ErrNoModels):
		return outcomeNoModels
	case errors.Is(err, estimator.ErrNoValidPrediction):
		return outcomeNoPrediction
	default:
		return outcomeError
	}
}
