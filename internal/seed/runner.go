package seed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/fibertrace/pkg/logger"
)

// Run checks the service, generates cfg.Count samples, submits them with
// cfg.Workers concurrent submitters and reports how many fiber models the
// service can build afterwards.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	start := time.Now()
	log := logger.Get().Named("seed")
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	log.Info(ctx, "starting seed run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("count", cfg.Count),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	client := NewClient(cfg.BaseURL, cfg.Identity, cfg.Timeout, WithIdentityHeader(cfg.IdentityHeader))
	if err := client.Health(ctx); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}

	subs := NewGenerator(cfg.Seed, cfg.Noise).Generate(cfg.Count)
	stats := Stats{Generated: len(subs)}
	submit(ctx, client, cfg.Workers, subs, &stats)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("seed run cancelled: %w", err)
	}

	models, err := client.Models(ctx)
	if err != nil {
		log.Warn(ctx, "could not fetch models after seeding", logger.Error(err))
	} else {
		stats.Models = len(models)
	}
	stats.Duration = time.Since(start)

	log.Info(ctx, "seed run finished",
		logger.Int("submitted", stats.Submitted),
		logger.Int("created", stats.Created),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("models", stats.Models),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// submit fans subs out to a fixed worker pool.
func submit(ctx context.Context, client *Client, workers int, subs []Submission, stats *Stats) {
	var submitted, created, duplicate, failed atomic.Int64
	log := logger.Get().Named("seed")

	ch := make(chan Submission, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range ch {
				submitted.Add(1)
				res, err := client.Submit(ctx, sub)
				switch {
				case err != nil:
					failed.Add(1)
					log.Debug(ctx, "submission failed", logger.String("lot", sub.Sample.LotNumber), logger.Error(err))
				case res.Duplicate:
					duplicate.Add(1)
				default:
					created.Add(1)
				}
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, sub := range subs {
			select {
			case <-ctx.Done():
				return
			case ch <- sub:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Created = int(created.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
}
