// Package uploads sends resume files to the screening service, either as a
// one-shot batch or continuously from a watched directory. Files are sent
// through a bounded worker pool; a failed file never stops the others.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/screener-go/internal/api"
)

// DefaultWorkers is used when a caller passes a non-positive worker count.
const DefaultWorkers = 4

// Uploader sends one file. Satisfied by *api.Client.
type Uploader interface {
	Upload(ctx context.Context, name string, content io.Reader) (*api.UploadResult, error)
}

// Result is the outcome of one file.
type Result struct {
	Path     string
	BlobName string
	Err      error
}

// Report collects the outcome of a batch, in input order.
type Report struct {
	Results  []Result
	Uploaded int
	Failed   int
}

// Err joins every per-file error, or returns nil when all files went through.
func (r *Report) Err() error {
	var errs []error

	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Path, res.Err))
		}
	}

	return errors.Join(errs...)
}

// Batch uploads paths with at most workers in flight.
func Batch(ctx context.Context, up Uploader, paths []string, workers int, logger *slog.Logger) *Report {
	if workers < 1 {
		workers = DefaultWorkers
	}

	report := &Report{Results: make([]Result, len(paths))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			// Each worker owns its slot; no lock needed.
			report.Results[i] = uploadOne(gctx, up, path, logger)

			return nil
		})
	}

	_ = g.Wait()

	for _, res := range report.Results {
		if res.Err != nil {
			report.Failed++
		} else {
			report.Uploaded++
		}
	}

	logger.Info("upload batch finished",
		slog.Int("uploaded", report.Uploaded),
		slog.Int("failed", report.Failed),
	)

	return report
}

func uploadOne(ctx context.Context, up Uploader, path string, logger *slog.Logger) Result {
	f, err := os.Open(path)
	if err != nil {
		return Result{Path: path, Err: fmt.Errorf("uploads: %w", err)}
	}
	defer f.Close()

	out, err := up.Upload(ctx, path, f)
	if err != nil {
		logger.Warn("upload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return Result{Path: path, Err: err}
	}

	logger.Debug("uploaded",
		slog.String("path", path),
		slog.String("blob", out.BlobName),
	)

	return Result{Path: path, BlobName: out.BlobName}
}
