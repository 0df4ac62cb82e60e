package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRobotsEnforcer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	logger := zap.NewNop()

	allowAll := NewRobotsEnforcer(false, "test-agent", nil, logger)
	require.True(t, allowAll.Allowed(ctx, "https://example.com/whatever"))

	var robotsHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			fmt.Fprintln(w, "User-agent: *\nDisallow: /blocked\nCrawl-delay: 2")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewRobotsEnforcer(true, "test-agent", srv.Client(), logger)
	require.True(t, checker.Allowed(ctx, srv.URL+"/allowed"))
	require.False(t, checker.Allowed(ctx, srv.URL+"/blocked"))
	require.False(t, checker.Allowed(ctx, srv.URL+"/blocked/deeper"))
	require.Equal(t, int32(1), robotsHits.Load(), "robots.txt should be fetched once per host")

	enforcer, ok := checker.(*RobotsEnforcer)
	require.True(t, ok)
	require.Equal(t, 2*time.Second, enforcer.CrawlDelay(ctx, srv.URL+"/"))
}

func TestRobotsEnforcerFailsOpen(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	checker := NewRobotsEnforcer(true, "test-agent", srv.Client(), zap.NewNop())
	require.True(t, checker.Allowed(context.Background(), srv.URL+"/anything"))
}
