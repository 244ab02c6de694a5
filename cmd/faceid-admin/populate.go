package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/okian/faceid/internal/adapters/extractor"
	"github.com/okian/faceid/internal/adapters/registry"
	"github.com/okian/faceid/internal/adapters/worker"
	"github.com/okian/faceid/internal/domain/biometric"
)

// ErrIncomplete is returned when some identities could not be encoded.
var ErrIncomplete = errors.New("some identities were not encoded")

// encodingStore lists identities without an encoding and stores new ones.
type encodingStore interface {
	ListMissing(ctx context.Context) ([]biometric.Record, error)
	SaveEmbedding(ctx context.Context, id string, e biometric.Embedding) error
}

// imageEncoder turns an image reference into an embedding.
type imageEncoder interface {
	EncodeImage(ctx context.Context, ref string) (biometric.Embedding, error)
}

type populateFailure struct {
	Record biometric.Record
	Err    error
}

type populateResult struct {
	Total    int
	Encoded  int
	Saved    int
	Failures []populateFailure
}

type populateOptions struct {
	workers int
	dryRun  bool
}

func newPopulateCmd(e *env) *cobra.Command {
	var opts populateOptions

	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Compute and store face encodings for identities that lack one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := extractor.New(e.cfg.ExtractorURL,
				extractor.WithTimeout(e.cfg.ExtractorTimeout),
				extractor.WithDetectionModel(e.cfg.DetectionModel),
				extractor.WithEncodingModel(e.cfg.EncodingModel),
				extractor.WithJitters(e.cfg.Jitters),
			)
			loader := registry.NewLoader(e.source, client, registry.WithImageRoot(e.cfg.RegistryImageRoot))
			pool := worker.NewPool(opts.workers, worker.WithName("populate"))

			res, err := runPopulate(cmd.Context(), e.source, loader, pool, cmd.ErrOrStderr(), opts.dryRun)
			if err != nil {
				return err
			}
			return printPopulateSummary(cmd.OutOrStdout(), res, opts.dryRun)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 2, "concurrent extractor calls")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "encode but do not write to the database")
	return cmd
}

// runPopulate encodes every identity missing an encoding and saves the
// result. Per-identity failures are collected, not returned.
func runPopulate(ctx context.Context, store encodingStore, enc imageEncoder, pool *worker.Pool, progress io.Writer, dryRun bool) (populateResult, error) {
	records, err := store.ListMissing(ctx)
	if err != nil {
		return populateResult{}, fmt.Errorf("list identities without encoding: %w", err)
	}
	res := populateResult{Total: len(records)}
	if len(records) == 0 {
		return res, nil
	}

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("encoding faces"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)

	var mu sync.Mutex
	_, err = pool.Run(ctx, len(records), func(ctx context.Context, i int) error {
		defer func() { _ = bar.Add(1) }()
		r := records[i]
		encoded, err := encodeAndSave(ctx, store, enc, r, dryRun)

		mu.Lock()
		defer mu.Unlock()
		if encoded {
			res.Encoded++
		}
		if err != nil {
			res.Failures = append(res.Failures, populateFailure{Record: r, Err: err})
			return err
		}
		if !dryRun {
			res.Saved++
		}
		return nil
	})
	_ = bar.Finish()

	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Record.ID < res.Failures[j].Record.ID })
	if err != nil {
		return res, fmt.Errorf("populate interrupted: %w", err)
	}
	return res, nil
}

// encodeAndSave reports whether the image was encoded, even when saving fails.
func encodeAndSave(ctx context.Context, store encodingStore, enc imageEncoder, r biometric.Record, dryRun bool) (bool, error) {
	e, err := enc.EncodeImage(ctx, r.ImageRef)
	if err != nil {
		return false, err
	}
	if dryRun {
		return true, nil
	}
	return true, store.SaveEmbedding(ctx, r.ID, e)
}

func printPopulateSummary(out io.Writer, res populateResult, dryRun bool) error {
	if dryRun {
		fmt.Fprintf(out, "Encoded %d of %d identities without an encoding (dry run, nothing saved).\n", res.Encoded, res.Total)
	} else {
		fmt.Fprintf(out, "Saved %d of %d identities without an encoding.\n", res.Saved, res.Total)
	}
	if len(res.Failures) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREASON")
	fmt.Fprintln(w, "--\t----\t------")
	for _, f := range res.Failures {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Record.ID, f.Record.DisplayName, reason(f.Err))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d failed", ErrIncomplete, len(res.Failures))
}

// reason shortens well-known failures for the summary table.
func reason(err error) string {
	switch {
	case errors.Is(err, registry.ErrNoImage):
		return "no readable image"
	case errors.Is(err, registry.ErrNoFace):
		return "no face in image"
	case errors.Is(err, extractor.ErrUnavailable):
		return "extractor unavailable"
	default:
		return err.Error()
	}
}
