// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package npm describes the npm registry interface.
package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/debler/debler/internal/httpx"
	"github.com/debler/debler/internal/urlx"
	"github.com/pkg/errors"
)

// DefaultURL is the canonical registry.npmjs.org endpoint.
var DefaultURL = urlx.MustParse("https://registry.npmjs.org")

type NPMPackage struct {
	Name        string `json:"name"`
	DistTags    `json:"dist-tags"`
	Versions    map[string]Release   `json:"versions"`
	UploadTimes map[string]time.Time `json:"time"`
}

type DistTags struct {
	Latest string `json:"latest"`
}

type Release struct {
	Version       string `json:"version"`
	Dist          `json:"dist"`
	RawRepository json.RawMessage `json:"repository"`
	Repository
}

type Repository struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Directory string `json:"directory"`
}

type Dist struct {
	URL    string `json:"tarball"`
	SHA1   string `json:"shasum"`
	SHA512 string `json:"integrity"`
}

// Registry is an npm package registry.
type Registry interface {
	Package(context.Context, string) (*NPMPackage, error)
	Artifact(context.Context, string, string) (io.ReadCloser, error)
	ArtifactURL(string, string) string
}

// HTTPRegistry is a Registry implementation that uses the npm HTTP API.
type HTTPRegistry struct {
	Client httpx.BasicClient
	// BaseURL overrides the registry endpoint; nil means registry.npmjs.org.
	BaseURL *url.URL
}

func (r HTTPRegistry) base() *url.URL {
	if r.BaseURL != nil {
		return r.BaseURL
	}
	return DefaultURL
}

// Package returns the package metadata for the given package.
func (r HTTPRegistry) Package(ctx context.Context, pkg string) (*NPMPackage, error) {
	pathURL, err := url.Parse(path.Join("/", pkg))
	if err != nil {
		return nil, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.base().ResolveReference(pathURL).String(), nil)
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, errors.Errorf("npm registry error: %v", resp.Status)
	}
	var p NPMPackage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	for s, v := range p.Versions {
		if len(v.RawRepository) > 0 {
			if err := json.Unmarshal(v.RawRepository, &v.Repository); err != nil {
				// Try to parse out legacy unstructured URL format.
				if err := json.Unmarshal(v.RawRepository, &v.Repository.URL); err != nil {
					return nil, err
				}
			}
		}
		v.RawRepository = nil
		p.Versions[s] = v
	}
	return &p, nil
}

// Artifact provides the tarball for a specific version.
func (r HTTPRegistry) Artifact(ctx context.Context, pkg, version string) (io.ReadCloser, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.ArtifactURL(pkg, version), nil)
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		resp.Body.Close()
		return nil, errors.Errorf("npm registry error: %v", resp.Status)
	}
	return resp.Body, nil
}

// ArtifactURL returns the URL for downloading a package tarball.
func (r HTTPRegistry) ArtifactURL(pkg, version string) string {
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", r.base().String(), pkg, pkg, version)
}

var _ Registry = &HTTPRegistry{}
