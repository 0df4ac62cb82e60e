package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/seo-site-crawler/internal/progress"
)

// PrometheusSink turns the progress stream into job and page collectors.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobDuration   *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	pageIssues    prometheus.Histogram

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewPrometheusSink registers its collectors on reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seo_crawl_jobs_started_total",
			Help: "Crawl jobs that reached RUNNING.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_crawl_jobs_finished_total",
			Help: "Crawl jobs that finished, by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seo_crawl_jobs_running",
			Help: "Crawl jobs currently running.",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seo_crawl_job_duration_seconds",
			Help:    "Wall time of finished crawl jobs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_crawl_fetches_total",
			Help: "Page fetches by status class.",
		}, []string{"status_class"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seo_crawl_fetch_duration_seconds",
			Help:    "Page fetch latency by status class.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"status_class"}),
		pageIssues: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seo_crawl_page_issues",
			Help:    "Issues found per analyzed page.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		running: make(map[uuid.UUID]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.jobsStarted, s.jobsFinished, s.jobsRunning, s.jobDuration,
		s.fetches, s.fetchDuration, s.pageIssues,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume implements progress.Sink.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.track(evt.JobID, true) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone:
			s.finish(evt, "success")
		case progress.StageJobError:
			s.finish(evt, "error")
		case progress.StageFetchDone:
			class := string(evt.StatusClass)
			s.fetches.WithLabelValues(class).Inc()
			if evt.Dur > 0 {
				s.fetchDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
			}
		case progress.StagePageAnalyzed:
			s.pageIssues.Observe(float64(evt.Issues))
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsFinished.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.track(evt.JobID, false) {
		s.jobsRunning.Dec()
	}
}

// track adds or removes id from the running set and reports whether the set
// changed.
func (s *PrometheusSink) track(id uuid.UUID, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		if ok {
			return false
		}
		s.running[id] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, id)
	return true
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
