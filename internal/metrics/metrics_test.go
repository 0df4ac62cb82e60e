package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"http", "http://example.com/path", "example.com"},
		{"https mixed case", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip", "192.168.1.1", "192.168.1.1"},
		{"invalid", "http://%", "unknown"},
		{"empty", "", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, SanitizeSite(tc.in))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := pagesTotal
	Init()
	require.Same(t, first, pagesTotal)
	require.NotNil(t, jobsTotal)
	require.NotNil(t, progressEventsTotal)
}

func TestObservePage(t *testing.T) {
	Init()
	before := testutil.ToFloat64(pagesTotal.WithLabelValues("observe.test", "4xx"))
	bytesBefore := testutil.ToFloat64(bytesTotal.WithLabelValues("observe.test"))

	ObservePage("https://Observe.test/missing", 404, 512)
	ObservePage("https://observe.test/err", 0, 0)

	require.Equal(t, before+1, testutil.ToFloat64(pagesTotal.WithLabelValues("observe.test", "4xx")))
	require.Equal(t, bytesBefore+512, testutil.ToFloat64(bytesTotal.WithLabelValues("observe.test")))
	require.GreaterOrEqual(t, testutil.ToFloat64(pagesTotal.WithLabelValues("observe.test", "error")), 1.0)
}

func TestStatusClass(t *testing.T) {
	t.Parallel()
	cases := map[int]string{0: "error", -1: "error", 200: "2xx", 301: "3xx", 404: "4xx", 503: "5xx"}
	for code, want := range cases {
		require.Equal(t, want, StatusClass(code), "code %d", code)
	}
}

func TestObserveFrontierDropsIgnoresZero(t *testing.T) {
	Init()
	before := testutil.ToFloat64(frontierDroppedTotal.WithLabelValues("robots"))
	ObserveFrontierDrops("depth", 0)
	ObserveFrontierDrops("robots", 3)
	require.Equal(t, before+3, testutil.ToFloat64(frontierDroppedTotal.WithLabelValues("robots")))
}

func TestObserveJobAndWorkers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("crawl", "SUCCESS"))
	ObserveJob("crawl", "SUCCESS")
	require.Equal(t, before+1, testutil.ToFloat64(jobsTotal.WithLabelValues("crawl", "SUCCESS")))

	IncActiveWorkers()
	active := testutil.ToFloat64(activeWorkers)
	DecActiveWorkers()
	require.Equal(t, active-1, testutil.ToFloat64(activeWorkers))

	ObserveRateLimitDelay("example.com", 20*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rateLimitDelaysSeconds))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, seed := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		require.NotEmpty(t, SanitizeSite(in))
	})
}
