package keywords

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/competitive"
)

const rankingsYAML = `
domains:
  www.example.com:
    - keyword: SEO Tools
      position: 3
      search_volume: 12000
      cpc: 4.5
    - keyword: site audit
      position: 11
      search_volume: 3000
  rival.io:
    - keyword: seo tools
      position: 1
      search_volume: 12000
`

func TestStaticSource(t *testing.T) {
	t.Parallel()

	src, err := ParseStatic(strings.NewReader(rankingsYAML))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"example.com", "rival.io"}, src.Domains())

	r, err := src.FetchRankings(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	require.Len(t, r, 2)
	require.Equal(t, 3, r["seo tools"].Position)
	require.InDelta(t, 4.5, r["seo tools"].CPC, 1e-9)

	r, err = src.FetchRankings(context.Background(), "example.com", []string{"site audit", "missing"})
	require.NoError(t, err)
	require.Len(t, r, 1)

	r, err = src.FetchRankings(context.Background(), "unknown.net", nil)
	require.NoError(t, err)
	require.Empty(t, r)
}

func TestLoadStaticFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rankings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rankingsYAML), 0o600))
	src, err := LoadStatic(path)
	require.NoError(t, err)
	r, err := src.FetchRankings(context.Background(), "rival.io", nil)
	require.NoError(t, err)
	require.Equal(t, 1, r["seo tools"].Position)

	_, err = LoadStatic("")
	require.Error(t, err)
	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_, err = ParseStatic(strings.NewReader("domains: [not, a, map]"))
	require.Error(t, err)
}

func TestSimulatedIsDeterministic(t *testing.T) {
	t.Parallel()

	sim := NewSimulated(0)
	first, err := sim.FetchRankings(context.Background(), "example.com", nil)
	require.NoError(t, err)
	second, err := sim.FetchRankings(context.Background(), "www.example.com", nil)
	require.NoError(t, err)
	require.Len(t, first, 23)
	require.Equal(t, first, second)

	for _, r := range first {
		require.GreaterOrEqual(t, r.Position, 1)
		require.LessOrEqual(t, r.Position, 50)
		require.GreaterOrEqual(t, r.SearchVolume, int64(100))
		require.LessOrEqual(t, r.SearchVolume, int64(50000))
	}

	limited, err := NewSimulated(5).FetchRankings(context.Background(), "example.com", []string{"seo tools"})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSimulatedBoostsSEODomains(t *testing.T) {
	t.Parallel()

	r, err := NewSimulated(0).FetchRankings(context.Background(), "bestseotool.com", nil)
	require.NoError(t, err)
	for _, row := range r {
		require.LessOrEqual(t, row.Position, 40)
	}
}

type stubSource struct {
	delay time.Duration
	err   error
	rows  competitive.Rankings
}

func (s stubSource) FetchRankings(ctx context.Context, _ string, _ []string) (competitive.Rankings, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.rows, s.err
}

func TestWithTimeoutDegradesToEmpty(t *testing.T) {
	t.Parallel()

	slow := WithTimeout(stubSource{delay: time.Second}, 20*time.Millisecond, nil)
	start := time.Now()
	r, err := slow.FetchRankings(context.Background(), "example.com", nil)
	require.NoError(t, err)
	require.Empty(t, r)
	require.Less(t, time.Since(start), 500*time.Millisecond)

	failing := WithTimeout(stubSource{err: errors.New("quota exhausted")}, time.Second, nil)
	r, err = failing.FetchRankings(context.Background(), "example.com", nil)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Empty(t, r)

	rows := competitive.NewRankings([]competitive.Ranking{
		{Keyword: "seo tools", Position: 2},
		{Keyword: "meta tags", Position: 9},
	})
	ok := WithTimeout(stubSource{rows: rows}, time.Second, nil)
	r, err = ok.FetchRankings(context.Background(), "example.com", []string{"meta tags"})
	require.NoError(t, err)
	require.Len(t, r, 1)
}

func TestWithTimeoutHonoursCallerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WithTimeout(stubSource{delay: time.Second}, time.Minute, nil).
		FetchRankings(ctx, "example.com", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSelectsSource(t *testing.T) {
	t.Parallel()

	src, err := New(Config{Source: "simulated", Timeout: time.Second}, nil)
	require.NoError(t, err)
	r, err := src.FetchRankings(context.Background(), "example.com", nil)
	require.NoError(t, err)
	require.NotEmpty(t, r)

	src, err = New(Config{Source: "none"}, nil)
	require.NoError(t, err)
	r, err = src.FetchRankings(context.Background(), "example.com", nil)
	require.NoError(t, err)
	require.Empty(t, r)

	_, err = New(Config{Source: "semrush"}, nil)
	require.ErrorIs(t, err, ErrUnknownSource)
	_, err = New(Config{Source: "static"}, nil)
	require.Error(t, err)
}
