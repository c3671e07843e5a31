// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package builder implements the shared build pipeline: fetching upstream
// sources, materializing debian/ trees from emitter records and driving the
// packaging toolchain.
package builder

import (
	stderrors "errors"
	"fmt"
)

// BuildError marks a packaging-toolchain failure (dpkg-buildpackage, sbuild,
// signing), as opposed to a programming error. The build loop treats both as
// a failed revision but reports them differently.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// IsBuildError reports whether any error in the chain is a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return stderrors.As(err, &be)
}
