// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package repo regenerates the signed repository indexes over the uploaded
// packages. The index formats themselves come from apt-ftparchive and gpg;
// this package only drives them.
package repo

import (
	"compress/gzip"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/debler/debler/pkg/config"
	"github.com/pkg/errors"
)

// Publisher emits the repository indexes of one artifact kind.
type Publisher struct {
	Config *config.Config
	// Run executes a command in dir and returns its stdout; tests replace it.
	Run func(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

func run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "running %s", name)
	}
	return out, nil
}

// Dir returns the repository directory of an artifact kind.
func (p *Publisher) Dir(kind string) (string, error) {
	switch kind {
	case "gem":
		return p.Config.GemDir, nil
	case "app":
		return p.Config.AppDir, nil
	case "npm":
		return p.Config.NPMDir, nil
	}
	return "", errors.Errorf("unknown artifact kind %q", kind)
}

// Publish regenerates Packages, Sources and the signed Release files of the
// given kind's repository.
func (p *Publisher) Publish(ctx context.Context, kind string) error {
	dir, err := p.Dir(kind)
	if err != nil {
		return err
	}
	runner := p.Run
	if runner == nil {
		runner = run
	}
	for _, index := range []string{"Packages", "Sources"} {
		out, err := runner(ctx, dir, "apt-ftparchive", indexCommand(index), ".")
		if err != nil {
			return err
		}
		if err := writeIndex(dir, index, out); err != nil {
			return err
		}
	}
	release, err := runner(ctx, dir, "apt-ftparchive", "release", ".")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "Release"), release, 0644); err != nil {
		return errors.Wrap(err, "writing Release")
	}
	key := p.Config.KeyID.String()
	if key == "" {
		return nil
	}
	if _, err := runner(ctx, dir, "gpg", "--batch", "--yes", "-u", key,
		"--clearsign", "-o", "InRelease", "Release"); err != nil {
		return err
	}
	if _, err := runner(ctx, dir, "gpg", "--batch", "--yes", "-u", key,
		"-abs", "-o", "Release.gpg", "Release"); err != nil {
		return err
	}
	return nil
}

func indexCommand(index string) string {
	if index == "Sources" {
		return "sources"
	}
	return "packages"
}

// writeIndex stores an index both plain and gzipped; apt requires at least
// one compressed variant.
func writeIndex(dir, name string, content []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), content, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	f, err := os.Create(filepath.Join(dir, name+".gz"))
	if err != nil {
		return errors.Wrapf(err, "writing %s.gz", name)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(content); err != nil {
		f.Close()
		return errors.Wrapf(err, "compressing %s", name)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return errors.Wrapf(err, "compressing %s", name)
	}
	return errors.Wrapf(f.Close(), "writing %s.gz", name)
}
