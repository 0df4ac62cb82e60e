package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/progress"
	"github.com/JakeFAU/seo-site-crawler/internal/store"
)

// StoreSink folds each batch into per-site deltas before writing, so a
// batch of N fetches costs one write per (job, site, status class).
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink wraps repo.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type deltaKey struct {
	job   uuid.UUID
	site  string
	class string
}

// Consume implements progress.Sink.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[deltaKey]*store.SiteDelta)
	var order []deltaKey

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			if err := s.repo.StartRun(ctx, evt.JobID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageJobDone:
			if err := s.repo.FinishRun(ctx, evt.JobID, evt.TS, store.RunSuccess, nil); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		case progress.StageJobError:
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.repo.FinishRun(ctx, evt.JobID, evt.TS, store.RunError, note); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		case progress.StageFetchDone, progress.StagePageAnalyzed:
			if evt.Site == "" {
				continue
			}
			key := deltaKey{job: evt.JobID, site: evt.Site}
			if evt.Stage == progress.StageFetchDone {
				key.class = string(evt.StatusClass)
			}
			d, ok := deltas[key]
			if !ok {
				d = &store.SiteDelta{JobID: evt.JobID, Site: evt.Site, StatusClass: key.class}
				deltas[key] = d
				order = append(order, key)
			}
			d.Pages += evt.Pages
			d.Bytes += evt.Bytes
			d.Issues += evt.Issues
			if evt.TS.After(d.At) {
				d.At = evt.TS
			}
		}
	}

	for _, key := range order {
		d := deltas[key]
		if d.Pages == 0 && d.Bytes == 0 && d.Issues == 0 {
			continue
		}
		if err := s.repo.AddSiteStats(ctx, *d); err != nil {
			return fmt.Errorf("add site stats: %w", err)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
