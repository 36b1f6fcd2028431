package uploads

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// DefaultSettle is how long a file must stay quiet before it is sent.
// Editors and copy tools write in several chunks.
const DefaultSettle = 500 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	Patterns []string
	Workers  int
	Settle   time.Duration

	// OnResult is called from a worker goroutine after every file.
	OnResult func(Result)
}

// Watch uploads every matching file created or written in dir until ctx is
// done. Files already present when the watch starts are left alone. Upload
// failures are reported through OnResult and never end the watch.
func Watch(ctx context.Context, dir string, up Uploader, opts WatchOptions, logger *slog.Logger) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("uploads: creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("uploads: watching %s: %w", dir, err)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	logger.Info("watching for resumes",
		slog.String("dir", dir),
		slog.Int("workers", workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	pending := make(map[string]struct{})

	timer := time.NewTimer(settle)
	timer.Stop() // idle until the first event
	defer timer.Stop()

	dispatch := func() {
		for _, path := range drain(pending) {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				logger.Debug("skipping vanished or non-regular entry", slog.String("path", path))

				continue
			}

			g.Go(func() error {
				res := uploadOne(gctx, up, path, logger)
				if opts.OnResult != nil {
					opts.OnResult(res)
				}

				return nil
			})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return g.Wait()

		case ev, ok := <-fw.Events:
			if !ok {
				return g.Wait()
			}

			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if !Matches(ev.Name, opts.Patterns) {
				continue
			}

			pending[ev.Name] = struct{}{}
			timer.Reset(settle)

		case werr, ok := <-fw.Errors:
			if !ok {
				return g.Wait()
			}

			logger.Warn("directory watcher error", slog.String("error", werr.Error()))

		case <-timer.C:
			dispatch()
		}
	}
}

// drain empties pending and returns its paths in sorted order.
func drain(pending map[string]struct{}) []string {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}

	clear(pending)
	sort.Strings(paths)

	return paths
}
