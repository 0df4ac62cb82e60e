package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/competitive"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/dispatcher"
	"github.com/JakeFAU/seo-site-crawler/internal/export"
	"github.com/JakeFAU/seo-site-crawler/internal/id/uuid"
	"github.com/JakeFAU/seo-site-crawler/internal/inspect"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

type crawlOptionsRequest struct {
	AllowSubdomains *bool    `json:"allow_subdomains"`
	RespectRobots   *bool    `json:"respect_robots"`
	Render          string   `json:"render"`
	IncludeSitemap  *bool    `json:"include_sitemap"`
	ExcludePatterns []string `json:"exclude_patterns"`
	ArchiveHTML     *bool    `json:"archive_html"`
}

type crawlRequest struct {
	RootURL          string              `json:"root_url"`
	MaxPages         *int                `json:"max_pages"`
	MaxDepth         *int                `json:"max_depth"`
	CheckPerformance bool                `json:"check_performance"`
	Options          crawlOptionsRequest `json:"options"`
}

type standardCrawlRequest struct {
	Name string `json:"name"`
}

type taskResponse struct {
	TaskID string           `json:"task_id"`
	Kind   crawler.JobKind  `json:"kind"`
	Status crawler.JobState `json:"status"`
}

type jobView struct {
	TaskID     string            `json:"task_id"`
	Kind       crawler.JobKind   `json:"kind"`
	Status     crawler.JobState  `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Params     crawler.JobParams `json:"params"`
	Result     json.RawMessage   `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func toJobView(job crawler.Job, withResult bool) jobView {
	v := jobView{
		TaskID:     job.ID,
		Kind:       job.Kind,
		Status:     job.State,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		Params:     job.Params,
		Error:      job.Error,
	}
	if withResult && len(job.Result) > 0 {
		v.Result = job.Result
	}
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := s.crawlParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.submit(w, r, crawler.JobKindCrawl, crawler.JobParams{Crawl: &params})
}

func (s *Server) submitStandardCrawl(w http.ResponseWriter, r *http.Request) {
	var req standardCrawlRequest
	if err := decodeBody(w, r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing crawl name")
		return
	}
	tmpl, ok := s.cfg.StandardCrawls[req.Name]
	if !ok {
		writeError(w, http.StatusNotFound, "standard crawl not found")
		return
	}
	params := tmpl
	params.Options.ExcludePatterns = append([]string(nil), tmpl.Options.ExcludePatterns...)
	params, err := s.applyCrawlDefaults(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.submit(w, r, crawler.JobKindCrawl, crawler.JobParams{Crawl: &params})
}

// crawlParams validates a request and fills omitted fields from config.
func (s *Server) crawlParams(req crawlRequest) (crawler.CrawlParams, error) {
	c := s.cfg.Crawler
	params := crawler.CrawlParams{
		RootURL:          req.RootURL,
		MaxPages:         valueOrDefault(req.MaxPages, 0),
		MaxDepth:         valueOrDefault(req.MaxDepth, 0),
		CheckPerformance: req.CheckPerformance,
		Options: crawler.CrawlOptions{
			AllowSubdomains: valueOrDefault(req.Options.AllowSubdomains, c.AllowSubdomains),
			RespectRobots:   valueOrDefault(req.Options.RespectRobots, c.RespectRobots),
			Render:          crawler.RenderMode(strings.ToLower(req.Options.Render)),
			IncludeSitemap:  valueOrDefault(req.Options.IncludeSitemap, c.IncludeSitemap),
			ExcludePatterns: req.Options.ExcludePatterns,
			ArchiveHTML:     valueOrDefault(req.Options.ArchiveHTML, c.ArchiveHTML),
		},
	}
	if req.MaxPages != nil && *req.MaxPages <= 0 {
		return crawler.CrawlParams{}, errors.New("max_pages must be positive")
	}
	if req.MaxDepth != nil && *req.MaxDepth < 0 {
		return crawler.CrawlParams{}, errors.New("max_depth must be >= 0")
	}
	return s.applyCrawlDefaults(params)
}

func (s *Server) applyCrawlDefaults(p crawler.CrawlParams) (crawler.CrawlParams, error) {
	c := s.cfg.Crawler
	if strings.TrimSpace(p.RootURL) == "" {
		return p, errors.New("root_url is required")
	}
	root, err := crawler.NormalizeURL(p.RootURL)
	if err != nil || !strings.HasPrefix(root, "http") {
		return p, errors.New("root_url must be an absolute http(s) URL")
	}
	p.RootURL = root
	if p.MaxPages == 0 {
		p.MaxPages = c.MaxPagesDefault
	}
	if c.MaxPagesLimit > 0 && p.MaxPages > c.MaxPagesLimit {
		return p, fmt.Errorf("max_pages may not exceed %d", c.MaxPagesLimit)
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = c.MaxDepthDefault
	}
	switch p.Options.Render {
	case "":
		p.Options.Render = crawler.RenderMode(c.DefaultRender)
		if p.Options.Render == "" {
			p.Options.Render = crawler.RenderAuto
		}
	case crawler.RenderAuto, crawler.RenderAlways, crawler.RenderNever:
	default:
		return p, fmt.Errorf("options.render must be one of auto, always, never")
	}
	for _, pat := range p.Options.ExcludePatterns {
		if strings.HasPrefix(pat, "/") {
			if _, err := path.Match(pat, ""); err != nil {
				return p, fmt.Errorf("options.exclude_patterns: bad glob %q", pat)
			}
		}
	}
	return p, nil
}

type keywordGapRequest struct {
	DomainA  string   `json:"domain_a"`
	DomainB  string   `json:"domain_b"`
	Keywords []string `json:"keywords"`
}

type shareOfVoiceRequest struct {
	Domains  []string `json:"domains"`
	Keywords []string `json:"keywords"`
}

type overviewRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) submitKeywordGap(w http.ResponseWriter, r *http.Request) {
	var req keywordGapRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, b := competitive.NormalizeDomain(req.DomainA), competitive.NormalizeDomain(req.DomainB)
	if a == "" || b == "" {
		writeError(w, http.StatusBadRequest, "domain_a and domain_b are required")
		return
	}
	s.submit(w, r, crawler.JobKindKeywordGap, crawler.JobParams{
		KeywordGap: &crawler.KeywordGapParams{DomainA: a, DomainB: b, Keywords: req.Keywords},
	})
}

func (s *Server) submitShareOfVoice(w http.ResponseWriter, r *http.Request) {
	var req shareOfVoiceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	domains := make([]string, 0, len(req.Domains))
	seen := map[string]bool{}
	for _, d := range req.Domains {
		nd := competitive.NormalizeDomain(d)
		if nd == "" || seen[nd] {
			continue
		}
		seen[nd] = true
		domains = append(domains, nd)
	}
	if len(domains) == 0 {
		writeError(w, http.StatusBadRequest, "at least one domain is required")
		return
	}
	s.submit(w, r, crawler.JobKindShareOfVoice, crawler.JobParams{
		ShareOfVoice: &crawler.ShareOfVoiceParams{Domains: domains, Keywords: req.Keywords},
	})
}

func (s *Server) submitOverview(w http.ResponseWriter, r *http.Request) {
	var req overviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d := competitive.NormalizeDomain(req.Domain)
	if d == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	s.submit(w, r, crawler.JobKindCompetitorOverview, crawler.JobParams{
		Overview: &crawler.OverviewParams{Domain: d},
	})
}

type contentOptimizerRequest struct {
	URL            string   `json:"url"`
	TargetKeywords []string `json:"target_keywords"`
	Render         string   `json:"render"`
}

type bulkURLRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) submitContentOptimizer(w http.ResponseWriter, r *http.Request) {
	var req contentOptimizerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := crawler.NormalizeHTTPURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	mode := crawler.RenderMode(strings.ToLower(req.Render))
	switch mode {
	case "":
		mode = crawler.RenderMode(s.cfg.Crawler.DefaultRender)
		if mode == "" {
			mode = crawler.RenderAuto
		}
	case crawler.RenderAuto, crawler.RenderAlways, crawler.RenderNever:
	default:
		writeError(w, http.StatusBadRequest, "render must be one of auto, always, never")
		return
	}
	var targets []string
	for _, kw := range req.TargetKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			targets = append(targets, kw)
		}
	}
	s.submit(w, r, crawler.JobKindContentOptimizer, crawler.JobParams{
		ContentOptimizer: &crawler.ContentOptimizerParams{URL: target, TargetKeywords: targets, Render: mode},
	})
}

func (s *Server) submitBulkURLs(w http.ResponseWriter, r *http.Request) {
	var req bulkURLRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case len(req.URLs) == 0:
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	case len(req.URLs) > inspect.MaxBulkURLs:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d urls per request", inspect.MaxBulkURLs))
		return
	}
	s.submit(w, r, crawler.JobKindBulkURLs, crawler.JobParams{
		BulkURLs: &crawler.BulkURLParams{URLs: req.URLs},
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind crawler.JobKind, params crawler.JobParams) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	job, err := s.jobs.Submit(ctx, kind, params)
	if err != nil {
		s.logger.Error("submit job failed", zap.String("kind", string(kind)), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, crawler.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "could not submit job")
		return
	}
	writeJSON(w, http.StatusAccepted, taskResponse{TaskID: job.ID, Kind: job.Kind, Status: job.State})
}

// loadJob resolves {job_id}, writing the error response itself when it fails.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (crawler.Job, bool) {
	id := chi.URLParam(r, "job_id")
	if !uuid.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid job_id")
		return crawler.Job{}, false
	}
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return crawler.Job{}, false
	}
	return job, true
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, crawler.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Error("job lookup failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load job")
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Kind != crawler.JobKindCrawl {
		writeError(w, http.StatusNotFound, "crawl not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job, true))
}

func (s *Server) exportCrawl(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Kind != crawler.JobKindCrawl {
		writeError(w, http.StatusNotFound, "crawl not found")
		return
	}
	if !job.State.Terminal() || len(job.Result) == 0 {
		writeError(w, http.StatusConflict, "crawl has no report yet")
		return
	}
	var report crawler.Report
	if err := json.Unmarshal(job.Result, &report); err != nil {
		s.logger.Error("decode stored report failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stored report is unreadable")
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, report); err != nil {
		s.logger.Error("export failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="crawl-%s.%s"`, job.ID, format.Extension()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("write export failed", zap.Error(err))
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(v, maxListLimit)
	}
	jobs, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, toJobView(j, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job, true))
}

// waitJob long-polls until the job finishes or ?timeout= elapses (default
// 30s, capped at server.max_wait). A timeout returns 200 with the current,
// non-terminal state.
func (s *Server) waitJob(w http.ResponseWriter, r *http.Request) {
	timeout := 30 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := parseTimeout(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		timeout = d
	}
	timeout = min(timeout, s.maxWait())

	id := chi.URLParam(r, "job_id")
	if !uuid.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid job_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	job, err := s.jobs.Await(ctx, id)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job, true))
}

// parseTimeout accepts Go durations ("15s") or bare seconds ("15").
func parseTimeout(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, errors.New("negative timeout")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, errors.New("invalid timeout")
	}
	return d, nil
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	if !uuid.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid job_id")
		return
	}
	job, err := s.jobs.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, dispatcher.ErrJobFinished):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "job already finished", "job": toJobView(job, false)})
	case err != nil:
		s.writeLookupError(w, err)
	default:
		writeJSON(w, http.StatusAccepted, toJobView(job, false))
	}
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
