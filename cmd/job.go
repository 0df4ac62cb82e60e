package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// cancelGrace bounds the wait for a cancelled job to write its partial result.
const cancelGrace = 15 * time.Second

// runJob builds the service, runs a single job on it and returns the
// finished job. Ctrl-C cancels the job and still returns what it produced.
func runJob(ctx context.Context, rt *runtime, kind crawler.JobKind, params crawler.JobParams) (crawler.Job, error) {
	app, err := newApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return crawler.Job{}, err
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			rt.logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	done := app.Start(workerCtx)
	defer func() {
		stopWorkers()
		<-done
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := app.Jobs().Submit(sigCtx, kind, params)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("submit %s job: %w", kind, err)
	}
	rt.logger.Info("job submitted", zap.String("job_id", job.ID), zap.String("kind", string(kind)))

	finished, err := app.Jobs().Await(sigCtx, job.ID)
	if err == nil {
		return finished, nil
	}
	if !errors.Is(err, context.Canceled) {
		return crawler.Job{}, fmt.Errorf("wait for job: %w", err)
	}

	rt.logger.Warn("interrupted, cancelling job", zap.String("job_id", job.ID))
	graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelGrace)
	defer cancel()
	if _, err := app.Jobs().Cancel(graceCtx, job.ID); err != nil {
		rt.logger.Warn("cancel job failed", zap.Error(err))
	}
	return app.Jobs().Await(graceCtx, job.ID)
}
