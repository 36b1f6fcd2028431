package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	gosync "sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/screener-go/internal/app"
	"github.com/tonimelisma/screener-go/internal/heartbeat"
	"github.com/tonimelisma/screener-go/internal/uploads"
)

func newUploadCmd() *cobra.Command {
	var watchDir string

	cmd := &cobra.Command{
		Use:   "upload [FILE...]",
		Short: "Upload resumes to the active session",
		Long: `Upload resumes (PDF, DOCX, TXT, or a ZIP of them) to the active session.

Files are sent in parallel, up to transfers.parallel_uploads at a time. With
--watch DIR, new files matching transfers.upload_patterns are uploaded as they
appear until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchDir == "" && len(args) == 0 {
				return fmt.Errorf("nothing to upload: pass files or --watch DIR")
			}

			if watchDir != "" && len(args) > 0 {
				return fmt.Errorf("--watch cannot be combined with file arguments")
			}

			if watchDir != "" {
				return runUploadWatch(cmd, watchDir)
			}

			return runUploadFiles(cmd, args)
		},
	}

	cmd.Flags().StringVar(&watchDir, "watch", "", "watch a directory and upload new resumes")

	return cmd
}

// uploadJSON is the JSON schema for one file in `upload --json`.
type uploadJSON struct {
	Path     string `json:"path"`
	BlobName string `json:"blob_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runUploadFiles(cmd *cobra.Command, paths []string) error {
	ctx := cmd.Context()
	cc := cliContextFrom(ctx)

	a, err := cc.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cc.closeApp(a)

	report := uploads.Batch(ctx, a.Client, paths, cc.Cfg.Transfers.ParallelUploads, cc.Logger)

	if cc.Flags.JSON {
		out := make([]uploadJSON, 0, len(report.Results))
		for _, res := range report.Results {
			out = append(out, toUploadJSON(res))
		}

		if err := printJSON(cc.Stdout, out); err != nil {
			return err
		}
	} else {
		for _, res := range report.Results {
			if res.Err == nil {
				cc.Statusf("Uploaded %s\n", filepath.Base(res.Path))
			}
		}

		cc.Statusf("%d uploaded, %d failed.\n", report.Uploaded, report.Failed)
	}

	return report.Err()
}

// errGuestLapsed ends an upload watch whose guest credential ran out.
var errGuestLapsed = errors.New("guest access expired during watch")

func runUploadWatch(cmd *cobra.Command, dir string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	watchCtx, stop := context.WithCancel(ctx)
	defer stop()

	// Output comes from upload workers and the heartbeat goroutine.
	var (
		outMu  gosync.Mutex
		lapsed atomic.Bool
	)

	a, err := cc.openApp(ctx, app.Options{
		OnExpiry: func(tr heartbeat.ExpiryTransition) {
			outMu.Lock()
			fmt.Fprintln(cc.Stderr, expiryMessage(tr))
			outMu.Unlock()

			// A guest found already expired at start only gets the notice;
			// one that lapses mid-watch stops it.
			if tr.Identity != "" {
				lapsed.Store(true)
				stop()
			}
		},
	})
	if err != nil {
		return err
	}
	defer cc.closeApp(a)

	cc.Statusf("Watching %s for new resumes. Press Ctrl-C to stop.\n", dir)

	g, gctx := errgroup.WithContext(watchCtx)

	g.Go(func() error {
		return a.RunHeartbeat(gctx)
	})

	g.Go(func() error {
		return uploads.Watch(gctx, dir, a.Client, uploads.WatchOptions{
			Patterns: cc.Cfg.Transfers.UploadPatterns,
			Workers:  cc.Cfg.Transfers.ParallelUploads,
			OnResult: func(res uploads.Result) {
				outMu.Lock()
				defer outMu.Unlock()

				if cc.Flags.JSON {
					_ = printJSON(cc.Stdout, toUploadJSON(res))

					return
				}

				if res.Err != nil {
					fmt.Fprintf(cc.Stderr, "Error: %s: %v\n", filepath.Base(res.Path), res.Err)

					return
				}

				cc.Statusf("Uploaded %s\n", filepath.Base(res.Path))
			},
		}, cc.Logger)
	})

	err = g.Wait()

	if lapsed.Load() {
		return reported(errGuestLapsed)
	}

	return err
}

func toUploadJSON(res uploads.Result) uploadJSON {
	out := uploadJSON{Path: res.Path, BlobName: res.BlobName}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}

	return out
}
