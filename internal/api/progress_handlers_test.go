package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/store"
)

type fakeProgressRepo struct {
	run       store.Run
	sites     []store.SiteStats
	err       error
	gotLimit  int
	gotOffset int
}

func (f *fakeProgressRepo) StartRun(context.Context, uuid.UUID, time.Time) error { return nil }

func (f *fakeProgressRepo) FinishRun(context.Context, uuid.UUID, time.Time, store.RunStatus, *string) error {
	return nil
}

func (f *fakeProgressRepo) AddSiteStats(context.Context, store.SiteDelta) error { return nil }

func (f *fakeProgressRepo) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	if f.err != nil {
		return store.Run{}, f.err
	}
	run := f.run
	run.JobID = id
	return run, nil
}

func (f *fakeProgressRepo) ListSiteStats(_ context.Context, _ uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return f.sites, f.err
}

func withJobIDParam(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("job_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestProgressHandlerGetRun(t *testing.T) {
	t.Parallel()
	repo := &fakeProgressRepo{run: store.Run{Status: store.RunRunning, StartedAt: time.Now().UTC()}}
	h := NewProgressHandler(repo, zap.NewNop())
	id := uuid.New()

	rec := httptest.NewRecorder()
	h.GetRun(rec, withJobIDParam(httptest.NewRequest(http.MethodGet, "/", nil), id.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run store.Run `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, id, body.Run.JobID)
	require.Equal(t, store.RunRunning, body.Run.Status)
}

func TestProgressHandlerErrors(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		repo store.ProgressRepository
		id   string
		want int
	}{
		"no repo":    {repo: nil, id: uuid.NewString(), want: http.StatusServiceUnavailable},
		"bad id":     {repo: &fakeProgressRepo{}, id: "nope", want: http.StatusBadRequest},
		"not found":  {repo: &fakeProgressRepo{err: store.ErrNotFound}, id: uuid.NewString(), want: http.StatusNotFound},
		"repo error": {repo: &fakeProgressRepo{err: errors.New("db down")}, id: uuid.NewString(), want: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := NewProgressHandler(tc.repo, nil)
			rec := httptest.NewRecorder()
			h.GetRun(rec, withJobIDParam(httptest.NewRequest(http.MethodGet, "/", nil), tc.id))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestProgressHandlerListSites(t *testing.T) {
	t.Parallel()
	repo := &fakeProgressRepo{sites: []store.SiteStats{{Site: "example.com", Pages: 4, Fetch2xx: 3, Failed: 1}}}
	h := NewProgressHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?limit=5000&offset=10", nil)
	h.ListSites(rec, withJobIDParam(req, uuid.NewString()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxSitesLimit, repo.gotLimit)
	require.Equal(t, 10, repo.gotOffset)
	require.Contains(t, rec.Body.String(), `"site":"example.com"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/?offset=-1", nil)
	h.ListSites(rec, withJobIDParam(req, uuid.NewString()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressHandlerListSitesEmpty(t *testing.T) {
	t.Parallel()
	h := NewProgressHandler(&fakeProgressRepo{}, zap.NewNop())
	rec := httptest.NewRecorder()
	h.ListSites(rec, withJobIDParam(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"sites":[]}`, rec.Body.String())
}
