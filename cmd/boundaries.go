package main

import (
	"context"
	"net/url"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/fetcher"
	"github.com/sells-group/parcel-resolver/internal/jurisdiction"
)

var (
	boundariesURL string
	boundariesDir string
)

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Manage county boundary shapefiles",
}

var boundariesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and extract the county boundary shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if boundariesURL != "" {
			cfg.Boundaries.SourceURL = boundariesURL
		}
		if boundariesDir != "" {
			cfg.Boundaries.Dir = boundariesDir
		}
		if err := cfg.Validate("boundaries"); err != nil {
			return err
		}

		f, err := fetcher.ForURL(cfg.Boundaries.SourceURL, fetcher.HTTPOptions{}, fetcher.FTPOptions{})
		if err != nil {
			return err
		}
		shpPath, err := fetchBoundaries(ctx, f, cfg.Boundaries.SourceURL, cfg.Boundaries.Dir)
		if err != nil {
			return err
		}

		loc, err := jurisdiction.Load(shpPath, cfg.Boundaries.NameField)
		if err != nil {
			return eris.Wrap(err, "verify shapefile")
		}
		zap.L().Info("boundaries ready",
			zap.String("shapefile", shpPath),
			zap.Int("counties", loc.Len()),
		)
		return writeJSON(cmd.OutOrStdout(), map[string]any{"shapefile": shpPath, "counties": loc.Len()})
	},
}

// fetchBoundaries downloads rawURL into dir, extracting it when it is a ZIP,
// and returns the path of the first .shp file found.
func fetchBoundaries(ctx context.Context, f fetcher.Fetcher, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "boundaries: parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "boundaries.zip"
	}
	dest := filepath.Join(dir, name)

	n, err := f.DownloadToFile(ctx, rawURL, dest)
	if err != nil {
		return "", eris.Wrap(err, "boundaries: download")
	}
	zap.L().Info("boundaries downloaded", zap.String("file", dest), zap.Int64("bytes", n))

	files := []string{dest}
	if strings.EqualFold(filepath.Ext(dest), ".zip") {
		files, err = fetcher.ExtractZIP(dest, dir)
		if err != nil {
			return "", err
		}
	}
	for _, p := range files {
		if strings.EqualFold(filepath.Ext(p), ".shp") {
			return p, nil
		}
	}
	return "", eris.Errorf("boundaries: no .shp file in %s", name)
}

func init() {
	boundariesFetchCmd.Flags().StringVar(&boundariesURL, "url", "", "source URL, http(s) or ftp (default from config)")
	boundariesFetchCmd.Flags().StringVar(&boundariesDir, "dir", "", "destination directory (default from config)")
	boundariesCmd.AddCommand(boundariesFetchCmd)
	rootCmd.AddCommand(boundariesCmd)
}
