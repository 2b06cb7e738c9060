package main

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zipFetcher serves a fixed set of entries as a ZIP archive.
type zipFetcher struct {
	entries map[string]string
	err     error
	gotURL  string
}

func (f *zipFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, eris.New("not used")
}

func (f *zipFetcher) DownloadToFile(_ context.Context, url, path string) (int64, error) {
	f.gotURL = url
	if f.err != nil {
		return 0, f.err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer out.Close() //nolint:errcheck

	zw := zip.NewWriter(out)
	for name, body := range f.entries {
		w, err := zw.Create(name)
		if err != nil {
			return 0, err
		}
		if _, err := io.Copy(w, strings.NewReader(body)); err != nil {
			return 0, err
		}
	}
	return 1, zw.Close()
}

func TestFetchBoundaries_ExtractsShapefile(t *testing.T) {
	dir := t.TempDir()
	f := &zipFetcher{entries: map[string]string{
		"tl_2024_us_county.dbf": "dbf",
		"tl_2024_us_county.shp": "shp",
		"tl_2024_us_county.shx": "shx",
	}}

	got, err := fetchBoundaries(context.Background(), f, "https://example.gov/geo/tl_2024_us_county.zip", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tl_2024_us_county.shp"), got)
	assert.FileExists(t, filepath.Join(dir, "tl_2024_us_county.dbf"))
	assert.FileExists(t, filepath.Join(dir, "tl_2024_us_county.zip"))
	assert.Equal(t, "https://example.gov/geo/tl_2024_us_county.zip", f.gotURL)
}

func TestFetchBoundaries_NoShapefile(t *testing.T) {
	f := &zipFetcher{entries: map[string]string{"README.txt": "nothing here"}}

	_, err := fetchBoundaries(context.Background(), f, "ftp://ftp.example.gov/pub/counties.zip", t.TempDir())
	assert.ErrorContains(t, err, "no .shp file")
}

func TestFetchBoundaries_DownloadError(t *testing.T) {
	f := &zipFetcher{err: eris.New("connection refused")}

	_, err := fetchBoundaries(context.Background(), f, "https://example.gov/counties.zip", t.TempDir())
	assert.ErrorContains(t, err, "boundaries: download")
}

func TestBoundariesFetch_RejectsUnknownScheme(t *testing.T) {
	useTestConfig(t)
	boundariesURL = "s3://bucket/counties.zip"
	t.Cleanup(func() { boundariesURL = "" })

	_, err := runCmd(t, boundariesFetchCmd)
	assert.ErrorContains(t, err, "unsupported scheme")
}
