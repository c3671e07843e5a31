// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"
)

// Fetch downloads url into path unless the file already exists. The cache
// layout is content-addressed by name and version, so a present file is
// always complete.
func (b *Base) Fetch(ctx context.Context, url, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating cache dir")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "building fetch request")
	}
	resp, err := b.Env.HTTP.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetching %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetching %s: %s", url, resp.Status)
	}
	// Write through a temp file so an aborted download never looks cached.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".fetch-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())
	bar := pb.New64(resp.ContentLength).SetUnits(pb.U_BYTES)
	bar.Start()
	_, err = io.Copy(tmp, bar.NewProxyReader(resp.Body))
	bar.Finish()
	if err != nil {
		tmp.Close()
		return errors.Wrapf(err, "downloading %s", url)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "committing download")
}

// CloneAtRevision clones the repository into dir and hard-resets the worktree
// to the given commit.
func CloneAtRevision(ctx context.Context, repoURL, revision, dir string) error {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: repoURL})
	if err != nil {
		return errors.Wrapf(err, "cloning %s", repoURL)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "opening worktree")
	}
	err = wt.Reset(&git.ResetOptions{
		Commit: plumbing.NewHash(revision),
		Mode:   git.HardReset,
	})
	return errors.Wrapf(err, "resetting to %s", revision)
}
