package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benefitscout/leadgen-cli/internal/fetcher"
	"github.com/benefitscout/leadgen-cli/internal/pipeline"
)

var fetchYear int

// archivePaths names the local archive files for one plan year.
func archivePaths(dir string, year int) pipeline.Archives {
	return pipeline.Archives{
		Main:       filepath.Join(dir, fmt.Sprintf("f_5500_%d.zip", year)),
		Commission: filepath.Join(dir, fmt.Sprintf("f_sch_a_%d.zip", year)),
		Fee:        filepath.Join(dir, fmt.Sprintf("f_sch_c_%d.zip", year)),
	}
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the yearly filing archives into the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
			return eris.Wrap(err, "create data dir")
		}

		archives := archivePaths(cfg.Data.Dir, fetchYear)
		targets := []struct {
			name string
			url  string
			path string
		}{
			{"form 5500", cfg.Data.MainURL, archives.Main},
			{"schedule a", cfg.Data.ScheduleAURL, archives.Commission},
			{"schedule c", cfg.Data.ScheduleCURL, archives.Fee},
		}

		httpf := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			RateLimiters: fetcher.DefaultRateLimiters(),
		})
		ftpf := fetcher.NewFTPFetcher(fetcher.FTPOptions{})

		g, gctx := errgroup.WithContext(ctx)
		for _, t := range targets {
			if t.url == "" {
				return eris.Errorf("fetch: no url configured for %s archive", t.name)
			}
			g.Go(func() error {
				return fetchArchive(gctx, httpf, ftpf, t.url, t.path, fetchYear)
			})
		}
		return g.Wait()
	},
}

func fetchArchive(ctx context.Context, httpf *fetcher.HTTPFetcher, ftpf *fetcher.FTPFetcher, rawURL, path string, year int) error {
	url := rawURL
	if strings.Contains(url, "%d") {
		url = fmt.Sprintf(url, year)
	}

	if strings.HasPrefix(url, "ftp://") {
		n, fetched, err := ftpf.DownloadIfNewer(ctx, url, path)
		if err != nil {
			return err
		}
		if !fetched {
			zap.L().Info("archive unchanged", zap.String("url", url), zap.String("path", path))
			return nil
		}
		zap.L().Info("archive fetched over ftp",
			zap.String("url", url),
			zap.String("path", path),
			zap.Int64("bytes", n),
		)
		return nil
	}

	etagPath := path + ".etag"
	etag := readETag(etagPath)
	body, newTag, changed, err := httpf.DownloadIfChanged(ctx, url, etag)
	if err != nil {
		return err
	}
	if !changed {
		zap.L().Info("archive unchanged", zap.String("url", url), zap.String("etag", etag))
		return nil
	}
	defer body.Close() //nolint:errcheck

	n, err := writeArchiveFile(path, body)
	if err != nil {
		return err
	}
	if newTag != "" {
		if err := os.WriteFile(etagPath, []byte(newTag), 0o644); err != nil {
			zap.L().Warn("etag record failed", zap.String("path", etagPath), zap.Error(err))
		}
	}
	zap.L().Info("archive fetched",
		zap.String("url", url),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return nil
}

// writeArchiveFile goes through a temp file and rename so an interrupted
// download never leaves a partial archive.
func writeArchiveFile(path string, body io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetch: create temp file")
	}
	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetch: write archive")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetch: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetch: move archive into place")
	}
	return n, nil
}

func readETag(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func init() {
	fetchCmd.Flags().IntVar(&fetchYear, "year", 2023, "plan year to download")
	rootCmd.AddCommand(fetchCmd)
}
