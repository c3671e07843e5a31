// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker drives the build loop: dequeue scheduled revisions, claim
// them, run the packager's builder and record the outcome.
package worker

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

var (
	banner  = color.New(color.FgBlue, color.Bold).SprintfFunc()
	success = color.New(color.FgGreen).SprintfFunc()
	failure = color.New(color.FgRed, color.Bold).SprintfFunc()
)

// Store is the catalog surface the worker needs.
type Store interface {
	NextPending(ctx context.Context) (int64, error)
	NextFailed(ctx context.Context) (int64, error)
	ListBuilds(ctx context.Context, state string) ([]int64, error)
	BuildData(ctx context.Context, revisionID int64) (*catalog.BuildData, error)
	ClaimBuild(ctx context.Context, revisionID int64, builder string) error
	ResetBuild(ctx context.Context, revisionID int64) error
	UpdateBuild(ctx context.Context, revisionID int64, result string) error
}

var _ Store = &catalog.DB{}

// Options selects which revisions a run processes and how.
type Options struct {
	// Retry processes failed revisions instead of pending ones.
	Retry bool
	// IDs restricts the run to explicit revisions.
	IDs []int64
	// Cancel marks the given revisions canceled instead of building.
	Cancel bool
	// ListOnly prints the matching revision ids without building.
	ListOnly bool
	// FailFast stops the run on the first failed build.
	FailFast bool
	// Incognito neither claims nor finalizes revisions.
	Incognito bool
	// Limit bounds the number of processed revisions; 0 means no bound.
	Limit int
	// Builder identifies this worker in revision claims.
	Builder string
}

// Summary is the outcome of one run.
type Summary struct {
	Total, Succeeded, Failed int
}

func (s Summary) String() string {
	return fmt.Sprintf("Built %d packages: %d successful, %d failed",
		s.Total, s.Succeeded, s.Failed)
}

// Runner processes scheduled revisions.
type Runner struct {
	Store Store
	// New resolves the packager-specific builder for one revision.
	New func(*catalog.BuildData) (builder.Builder, error)
	Out io.Writer
}

// Run processes revisions per the options and returns the summary. Build
// failures are recorded in the summary, not returned; the returned error
// reports infrastructure problems only.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	var sum Summary
	if opts.Cancel {
		for _, id := range opts.IDs {
			if err := r.Store.UpdateBuild(ctx, id, catalog.ResultCanceled); err != nil {
				return sum, err
			}
			fmt.Fprintf(r.Out, "canceled build %d\n", id)
		}
		return sum, nil
	}
	if opts.ListOnly {
		return sum, r.list(ctx, opts)
	}
	next := r.dequeuer(opts)
	for {
		if opts.Limit > 0 && sum.Total >= opts.Limit {
			return sum, nil
		}
		id, err := next(ctx)
		if errors.Is(err, catalog.ErrNotFound) {
			return sum, nil
		} else if err != nil {
			return sum, err
		}
		if id == 0 {
			return sum, nil
		}
		outcome, err := r.runOne(ctx, id, opts)
		if err != nil {
			return sum, err
		}
		if outcome == buildSkipped {
			continue
		}
		sum.Total++
		if outcome == buildSucceeded {
			sum.Succeeded++
			continue
		}
		sum.Failed++
		if opts.FailFast {
			return sum, nil
		}
	}
}

func (r *Runner) list(ctx context.Context, opts Options) error {
	ids := opts.IDs
	if len(ids) == 0 {
		state := "pending"
		if opts.Retry {
			state = catalog.ResultFailed
		}
		var err error
		ids, err = r.Store.ListBuilds(ctx, state)
		if err != nil {
			return err
		}
	}
	for _, id := range ids {
		data, err := r.Store.BuildData(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "%d\t%s\t%s\t%s\n",
			id, data.PackagerName, data.Package.Name, data.Revision.Version)
	}
	return nil
}

// dequeuer returns the revision id source: explicit ids or a streaming
// re-query, so revisions scheduled during the run are picked up too.
func (r *Runner) dequeuer(opts Options) func(context.Context) (int64, error) {
	if len(opts.IDs) > 0 {
		ids := opts.IDs
		return func(context.Context) (int64, error) {
			if len(ids) == 0 {
				return 0, nil
			}
			id := ids[0]
			ids = ids[1:]
			return id, nil
		}
	}
	if opts.Retry {
		return r.Store.NextFailed
	}
	return r.Store.NextPending
}

type buildOutcome int

const (
	buildSkipped buildOutcome = iota
	buildSucceeded
	buildFailed
)

// runOne builds a single revision. The outcome reports build success; the
// error reports catalog problems.
func (r *Runner) runOne(ctx context.Context, id int64, opts Options) (buildOutcome, error) {
	if !opts.Incognito && (opts.Retry || len(opts.IDs) > 0) {
		if err := r.Store.ResetBuild(ctx, id); err != nil {
			return buildSkipped, err
		}
	}
	if !opts.Incognito {
		err := r.Store.ClaimBuild(ctx, id, opts.Builder)
		if errors.Is(err, catalog.ErrAlreadyClaimed) {
			fmt.Fprintf(r.Out, "skipping build %d: %v\n", id, err)
			return buildSkipped, nil
		} else if err != nil {
			return buildSkipped, err
		}
	}
	data, err := r.Store.BuildData(ctx, id)
	if err != nil {
		return buildSkipped, err
	}
	fmt.Fprintln(r.Out, banner("=== building %s %s (revision %d) ===",
		data.Package.Name, data.Revision.Version, id))
	buildErr := r.build(ctx, data)
	if buildErr == nil {
		if !opts.Incognito {
			if err := r.Store.UpdateBuild(ctx, id, catalog.ResultFinished); err != nil {
				return buildSkipped, err
			}
		}
		fmt.Fprintln(r.Out, success("=== built %s %s ===",
			data.Package.Name, data.Revision.Version))
		return buildSucceeded, nil
	}
	if builder.IsBuildError(buildErr) {
		log.Printf("build %d failed: %v", id, buildErr)
	} else {
		log.Printf("build %d aborted: %+v", id, buildErr)
	}
	if !opts.Incognito {
		if err := r.Store.UpdateBuild(ctx, id, catalog.ResultFailed); err != nil {
			return buildSkipped, err
		}
	}
	fmt.Fprintln(r.Out, failure("=== failed %s %s ===",
		data.Package.Name, data.Revision.Version))
	return buildFailed, nil
}

func (r *Runner) build(ctx context.Context, data *catalog.BuildData) error {
	b, err := r.New(data)
	if err != nil {
		return err
	}
	if err := b.Generate(ctx); err != nil {
		return err
	}
	if err := b.Run(ctx); err != nil {
		return err
	}
	return b.Upload(ctx)
}
