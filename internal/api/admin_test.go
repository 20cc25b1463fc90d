package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dxywop/cf-clearance-scraper/internal/journal"
)

type fakeProbe struct {
	ready    bool
	inFlight int
	limit    int
}

func (p fakeProbe) Ready() bool   { return p.ready }
func (p fakeProbe) InFlight() int { return p.inFlight }
func (p fakeProbe) Limit() int    { return p.limit }

func serveAdmin(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdminReadyz(t *testing.T) {
	t.Parallel()

	starting := NewAdminHandler(fakeProbe{limit: 20}, nil, zap.NewNop())
	rec := serveAdmin(t, starting, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"starting","inFlight":0,"limit":20}`, rec.Body.String())

	ready := NewAdminHandler(fakeProbe{ready: true, inFlight: 3, limit: 20}, nil, nil)
	rec = serveAdmin(t, ready, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready","inFlight":3,"limit":20}`, rec.Body.String())

	rec = serveAdmin(t, ready, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminMetrics(t *testing.T) {
	t.Parallel()

	rec := serveAdmin(t, NewAdminHandler(fakeProbe{}, nil, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scraper_inflight_jobs")
}

func TestAdminDebugJobs(t *testing.T) {
	t.Parallel()

	ring := journal.NewRing(8)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, ring.Record(context.Background(), journal.Entry{ID: id, Mode: "source"}))
	}
	h := NewAdminHandler(fakeProbe{}, ring, nil)

	rec := serveAdmin(t, h, "/debug/jobs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"c"`)
	require.Contains(t, rec.Body.String(), `"id":"b"`)
	require.NotContains(t, rec.Body.String(), `"id":"a"`)

	rec = serveAdmin(t, h, "/debug/jobs?limit=zero")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serveAdmin(t, NewAdminHandler(fakeProbe{}, nil, nil), "/debug/jobs")
	require.JSONEq(t, `{"jobs":[]}`, rec.Body.String())
}
