package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zalepa/crimemap/config"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDownload(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"Neighborhoods/Neighborhoods.shp": "shp",
		"Neighborhoods/Neighborhoods.dbf": "dbf",
		"Neighborhoods/Neighborhoods.prj": "prj",
	})
	mux := http.NewServeMux()
	mux.HandleFunc("/crime.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a,b\n1,2\n"))
	})
	mux.HandleFunc("/neighborhoods.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	writeTestFile(t, dir, "boston/crime.csv", "already here")

	cfg := &config.Config{
		DataDir: dir,
		Municipalities: []config.Municipality{
			{
				Name:     "Somerville",
				Crime:    config.CrimeSource{Path: "somerville/crime.csv", URL: srv.URL + "/crime.csv"},
				Boundary: config.BoundarySource{Path: "somerville/Neighborhoods.shp", URL: srv.URL + "/neighborhoods.zip"},
			},
			{
				Name:     "Boston",
				Crime:    config.CrimeSource{Path: "boston/crime.csv", URL: srv.URL + "/crime.csv"},
				Boundary: config.BoundarySource{Path: "boston/bounds.shp", URL: srv.URL + "/missing.zip"},
			},
			{
				Name:     "Cambridge",
				Crime:    config.CrimeSource{Path: "cambridge/crime.csv"},
				Boundary: config.BoundarySource{Path: "cambridge/bounds.shp"},
			},
		},
	}

	res, err := Download(context.Background(), cfg, srv.Client(), zap.NewNop())
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, DownloadResult{Downloaded: 2, Skipped: 1, Failed: 1}, res)

	data, err := os.ReadFile(filepath.Join(dir, "somerville", "crime.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	for _, name := range []string{"Neighborhoods.shp", "Neighborhoods.dbf", "Neighborhoods.prj"} {
		assert.FileExists(t, filepath.Join(dir, "somerville", name))
	}

	data, err = os.ReadFile(filepath.Join(dir, "boston", "crime.csv"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "boston", "bounds.shp"))
}

func TestDownloadCancelled(t *testing.T) {
	cfg := &config.Config{
		DataDir: t.TempDir(),
		Municipalities: []config.Municipality{
			{Name: "Somerville", Crime: config.CrimeSource{Path: "crime.csv", URL: "http://127.0.0.1:1/crime.csv"}},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Download(ctx, cfg, nil, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}
