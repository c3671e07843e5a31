// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"archive/tar"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// TarXZ writes an xz-compressed tar stream, the format of the produced
// upstream tarballs.
type TarXZ struct {
	*tar.Writer
	xzw  *xz.Writer
	file *os.File
}

// CreateTarXZ opens path for writing as a .tar.xz stream.
func CreateTarXZ(path string) (*TarXZ, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	xzw, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "starting xz stream")
	}
	return &TarXZ{Writer: tar.NewWriter(xzw), xzw: xzw, file: f}, nil
}

// AddEntry writes one regular file entry.
func (t *TarXZ) AddEntry(name string, mode int64, modTime time.Time, size int64, r io.Reader) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    mode,
		ModTime: modTime,
		Size:    size,
	}
	if err := t.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing header of %s", name)
	}
	_, err := io.Copy(t.Writer, r)
	return errors.Wrapf(err, "writing %s", name)
}

// AddBytes writes one regular file entry from memory.
func (t *TarXZ) AddBytes(name string, mode int64, modTime time.Time, content []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    mode,
		ModTime: modTime,
		Size:    int64(len(content)),
	}
	if err := t.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing header of %s", name)
	}
	_, err := t.Write(content)
	return errors.Wrapf(err, "writing %s", name)
}

// Close flushes the tar and xz streams and closes the file.
func (t *TarXZ) Close() error {
	if err := t.Writer.Close(); err != nil {
		t.file.Close()
		return errors.Wrap(err, "closing tar stream")
	}
	if err := t.xzw.Close(); err != nil {
		t.file.Close()
		return errors.Wrap(err, "closing xz stream")
	}
	return errors.Wrap(t.file.Close(), "closing file")
}
