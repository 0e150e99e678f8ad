package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zalepa/crimemap/config"
	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/geo"
	"github.com/zalepa/crimemap/loader"
	"github.com/zalepa/crimemap/render"
)

func square(x, y, size float64) orb.MultiPolygon {
	return orb.MultiPolygon{{orb.Ring{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cambridge := &loader.Bundle{
		Name: "Cambridge", Zoom: 13, PopulationYear: "2020",
		Boundaries: []geo.Boundary{
			geo.NewBoundary("Cambridge", "Riverside", square(-71.11, 42.37, 0.01)),
			geo.NewBoundary("Cambridge", "Mid-Cambridge", square(-71.12, 42.37, 0.01)),
		},
		Population: map[crime.AreaKey]float64{crime.NewAreaKey("Cambridge", "Riverside"): 10000},
		Incidents: []crime.Incident{
			{Municipality: "Cambridge", Date: day(2021, 1, 5), Crime: "Larceny", Category: "Property", Neighborhood: "Riverside"},
			{Municipality: "Cambridge", Date: day(2021, 2, 9), Crime: "Assault", Category: "Violent", Neighborhood: "Mid-Cambridge"},
		},
	}
	somerville := &loader.Bundle{
		Name: "Somerville", Zoom: 13, PopulationYear: "2022 (area-weighted)",
		Boundaries: []geo.Boundary{
			geo.NewBoundary("Somerville", "Spring Hill", square(-71.10, 42.38, 0.01)),
		},
		Incidents: []crime.Incident{
			{Municipality: "Somerville", Date: day(2022, 3, 1), Crime: "Shoplifting", Category: "Property", Neighborhood: "Spring Hill",
				Location: orb.Point{-71.095, 42.385}, HasLocation: true},
		},
	}
	cfg := config.DefaultConfig()
	cat := loader.NewCatalog(cfg.Metro, cambridge, somerville)
	s, err := New(cfg, cat, zap.NewNop())
	require.NoError(t, err)
	return s
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestIndex(t *testing.T) {
	rec := get(t, testServer(t), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "leaflet")
}

func TestIndexEscapesTooltips(t *testing.T) {
	body := get(t, testServer(t), "/").Body.String()
	assert.Contains(t, body, "function esc(")
	assert.Contains(t, body, "esc(pr.neighborhood)")
	assert.NotContains(t, body, "'<b>' + pr.neighborhood")
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	s := testServer(t)
	core, logs := observer.New(zap.ErrorLevel)
	s.log = zap.New(core)

	rec := httptest.NewRecorder()
	rec.Header().Set(requestIDHeader, "req-1")
	s.writeJSON(rec, httptest.NewRequest(http.MethodGet, "/api/map", nil), map[string]any{"value": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "failed to encode response", body["error"])

	entries := logs.FilterMessage("JSON encode failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/map", fields["path"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestHealth(t *testing.T) {
	rec := get(t, testServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 3.0, body["incidents"])
}

func TestMetadata(t *testing.T) {
	rec := get(t, testServer(t), "/api/metadata")
	require.Equal(t, http.StatusOK, rec.Code)

	var meta metadata
	decode(t, rec, &meta)
	assert.Equal(t, "All Metro", meta.Default)
	require.Len(t, meta.Municipalities, 3)
	assert.Equal(t, "All Metro", meta.Municipalities[0].Name)
	assert.True(t, meta.Municipalities[0].Metro)
	assert.Equal(t, "2020, 2022 (area-weighted)", meta.Municipalities[0].PopulationYear)
	assert.Equal(t, []string{"Property", "Violent"}, meta.Municipalities[0].Categories)
	assert.Equal(t, "2021-01-05", meta.Municipalities[0].From)
	assert.Equal(t, "2022-03-01", meta.Municipalities[0].To)
	assert.Equal(t, "Cambridge", meta.Municipalities[1].Name)
	assert.Equal(t, 2, meta.Municipalities[1].Incidents)
}

func TestMapMunicipality(t *testing.T) {
	rec := get(t, testServer(t), "/api/map?municipality=cambridge&from=2021-01-01&to=2021-01-31")
	require.Equal(t, http.StatusOK, rec.Code)

	var v render.MapView
	decode(t, rec, &v)
	assert.Equal(t, "Cambridge", v.Municipality)
	assert.Equal(t, 1, v.Total)
	require.Len(t, v.Areas.Features, 2)
	assert.Equal(t, "Mid-Cambridge", v.Areas.Features[0].Properties["neighborhood"])
	assert.Equal(t, 0.0, v.Areas.Features[0].Properties["count"])
	assert.Equal(t, 1.0, v.Areas.Features[1].Properties["count"])
}

func TestMapMetroUnion(t *testing.T) {
	s := testServer(t)
	var metro render.MapView
	decode(t, get(t, s, "/api/map"), &metro)

	var sum int
	for _, name := range []string{"Cambridge", "Somerville"} {
		var v render.MapView
		decode(t, get(t, s, "/api/map?municipality="+name), &v)
		sum += v.Total
	}
	assert.Equal(t, metro.Total, sum)
	assert.Len(t, metro.Areas.Features, 3)
	assert.Len(t, metro.Points.Features, 1)
}

func TestMapEmptySelection(t *testing.T) {
	rec := get(t, testServer(t), "/api/map?municipality=Cambridge&category=Arson")
	require.Equal(t, http.StatusOK, rec.Code)
	var v render.MapView
	decode(t, rec, &v)
	assert.Equal(t, 0, v.Total)
	for _, f := range v.Areas.Features {
		assert.Equal(t, 0.0, f.Properties["count"])
	}
}

func TestMapCategoryList(t *testing.T) {
	s := testServer(t)
	for _, target := range []string{
		"/api/map?municipality=Cambridge&category=Property,Violent",
		"/api/map?municipality=Cambridge&category=Property&category=Violent",
	} {
		var v render.MapView
		decode(t, get(t, s, target), &v)
		assert.Equal(t, 2, v.Total, target)
	}
}

func TestMapDeterministic(t *testing.T) {
	s := testServer(t)
	target := "/api/map?municipality=Cambridge&metric=rate"
	first := get(t, s, target).Body.Bytes()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, get(t, s, target).Body.Bytes())
	}
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		target string
		status int
	}{
		{"/api/map?municipality=Gotham", http.StatusNotFound},
		{"/api/map?from=2021-13-01", http.StatusBadRequest},
		{"/api/map?from=2021-02-01&to=2021-01-01", http.StatusBadRequest},
		{"/api/map?metric=density", http.StatusBadRequest},
		{"/api/series?group=weekday", http.StatusBadRequest},
		{"/api/series?top=-1", http.StatusBadRequest},
		{"/api/nothing", http.StatusNotFound},
	}
	s := testServer(t)
	for _, tt := range tests {
		rec := get(t, s, tt.target)
		if rec.Code != tt.status {
			t.Errorf("GET %s: got %d, want %d", tt.target, rec.Code, tt.status)
			continue
		}
		var body map[string]string
		decode(t, rec, &body)
		assert.NotEmpty(t, body["error"], tt.target)
	}
}

func TestSeries(t *testing.T) {
	rec := get(t, testServer(t), "/api/series?group=neighborhood")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp seriesResponse
	decode(t, rec, &resp)
	assert.Equal(t, "All Metro", resp.Municipality)
	assert.Equal(t, "neighborhood", resp.Group)
	assert.Len(t, resp.Months, 15)
	require.Len(t, resp.Lines, 3)
	assert.Equal(t, "Cambridge / Mid-Cambridge", resp.Lines[0].Name)
}

func TestChart(t *testing.T) {
	rec := get(t, testServer(t), "/api/chart.png?municipality=Cambridge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
}

func TestReport(t *testing.T) {
	rec := get(t, testServer(t), "/api/report.pdf?municipality=Cambridge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	n, err := render.PageCount(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	// Summary, two neighborhoods, overall.
	assert.Equal(t, 4, n)
}

func TestRequestIDPropagates(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestServeShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := testServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	tr := &http.Transport{DisableKeepAlives: true}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	tr.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
