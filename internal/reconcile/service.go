package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Source runs one category query. count is the full number of findings;
// samples holds at most limit of them.
type Source interface {
	Scan(ctx context.Context, category Category, limit int) (count int, samples []Finding, err error)
}

// Service builds reconciliation reports. It never writes.
type Service struct {
	source Source
	logger *slog.Logger
	now    func() time.Time
}

func NewService(source Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source: source,
		logger: logger.With(slog.String("module", "reconcile")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type scanResult struct {
	count   int
	samples []Finding
}

// Run scans every category concurrently. sampleSize below 1 is raised to 1;
// zero selects DefaultSampleSize.
func (s *Service) Run(ctx context.Context, sampleSize int) (Report, error) {
	if s == nil || s.source == nil {
		return Report{}, ErrNoSource
	}
	if sampleSize == 0 {
		sampleSize = DefaultSampleSize
	}
	if sampleSize < 1 {
		sampleSize = 1
	}

	results := make([]scanResult, len(Categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range Categories {
		g.Go(func() error {
			count, samples, err := s.source.Scan(gctx, category, sampleSize)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", category, err)
			}
			results[i] = scanResult{count: count, samples: samples}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{
		GeneratedAt: s.now(),
		SampleSize:  sampleSize,
		Summary:     Summary{Counts: make(map[Category]int, len(Categories))},
		Classification: map[Group]map[Category]int{
			GroupAutoFix:      {},
			GroupManualReview: {},
			GroupLegacyGaps:   {},
		},
		Samples: make(map[Category][]Finding, len(Categories)),
	}
	for i, category := range Categories {
		res := results[i]
		report.Summary.Counts[category] = res.count
		report.Summary.Total += res.count
		report.Classification[GroupOf(category)][category] = res.count
		samples := res.samples
		if len(samples) > sampleSize {
			samples = samples[:sampleSize]
		}
		out := make([]Finding, 0, len(samples))
		for _, f := range samples {
			f.Category = category
			f.SuggestedAction = SuggestedAction(category)
			out = append(out, f)
		}
		report.Samples[category] = out
	}
	report.RequiresManualReview = report.CriticalCount() > 0

	s.logger.Info("reconciliation finished",
		slog.Int("total", report.Summary.Total),
		slog.Int("critical", report.CriticalCount()),
		slog.Int("sample_size", sampleSize),
	)
	return report, nil
}
