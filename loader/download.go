package loader

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/zalepa/crimemap/config"
)

// DownloadResult counts the outcome of a Download run.
type DownloadResult struct {
	Downloaded int
	Skipped    int
	Failed     int
}

type fetch struct {
	url  string
	dest string
}

// Download fetches every dataset that has a URL configured and is not yet on
// disk. Zip archives are unpacked next to the destination path, so a
// shapefile's .shp, .dbf and .prj land together. Failures are logged and
// joined into the returned error; the remaining files are still fetched.
func Download(ctx context.Context, cfg *config.Config, client *http.Client, log *zap.Logger) (DownloadResult, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var jobs []fetch
	add := func(url, p string) {
		if url != "" && p != "" {
			jobs = append(jobs, fetch{url: url, dest: cfg.Resolve(p)})
		}
	}
	for _, m := range cfg.Municipalities {
		add(m.Crime.URL, m.Crime.Path)
		add(m.Boundary.URL, m.Boundary.Path)
		if m.Blocks != nil {
			add(m.Blocks.URL, m.Blocks.Path)
		}
		if w := m.Population.Workbook; w != nil {
			add(w.URL, w.Path)
		}
	}

	var res DownloadResult
	var errs []error
	for _, j := range jobs {
		if _, err := os.Stat(j.dest); err == nil {
			log.Debug("Skipping existing dataset", zap.String("path", j.dest))
			res.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		log.Info("Downloading dataset", zap.String("url", j.url), zap.String("path", j.dest))
		if err := downloadFile(ctx, client, j.url, j.dest); err != nil {
			log.Error("Download failed", zap.String("url", j.url), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", j.url, err))
			res.Failed++
			continue
		}
		res.Downloaded++
	}
	return res, errors.Join(errs...)
}

func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	isZip := strings.EqualFold(path.Ext(req.URL.Path), ".zip") && !strings.EqualFold(filepath.Ext(dest), ".zip")
	if !isZip {
		return writeFile(dest, resp.Body)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "download-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return err
	}
	return unzip(tmp, n, filepath.Dir(dest))
}

// unzip extracts every regular file of the archive into dir by base name.
func unzip(r io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		if name == "." || strings.HasPrefix(name, ".") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(filepath.Join(dir, name), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	return f.Close()
}
