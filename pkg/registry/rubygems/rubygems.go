// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package rubygems describes the RubyGems registry interface.
package rubygems

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

// DefaultURL is the canonical rubygems.org endpoint.
var DefaultURL = urlx.MustParse("https://rubygems.org")

// Gem describes a single RubyGem's metadata.
type Gem struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Authors    string   `json:"authors"`
	Homepage   string   `json:"homepage_uri"`
	SourceCode string   `json:"source_code_uri"`
	GemURI     string   `json:"gem_uri"`
	SHA        string   `json:"sha"`
	Platform   string   `json:"platform"`
	Licenses   []string `json:"licenses"`
}

// VersionInfo describes a single version of a gem.
type VersionInfo struct {
	Number     string    `json:"number"`
	Platform   string    `json:"platform"`
	Prerelease bool      `json:"prerelease"`
	CreatedAt  time.Time `json:"created_at"`
	SHA        string    `json:"sha"`
	Licenses   []string  `json:"licenses"`
}

// Registry is a RubyGems package registry.
type Registry interface {
	Gem(context.Context, string) (*Gem, error)
	Versions(context.Context, string) ([]VersionInfo, error)
	Artifact(context.Context, string, string) (io.ReadCloser, error)
	ArtifactURL(string, string) string
}

// HTTPRegistry is a Registry implementation that uses the rubygems HTTP API.
type HTTPRegistry struct {
	Client httpx.BasicClient
	// BaseURL overrides the registry endpoint; nil means rubygems.org.
	BaseURL *url.URL
}

func (r HTTPRegistry) base() *url.URL {
	if r.BaseURL != nil {
		return r.BaseURL
	}
	return DefaultURL
}

func (r HTTPRegistry) getJSON(ctx context.Context, p string, out any) error {
	pathURL, err := url.Parse(p)
	if err != nil {
		return err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.base().ResolveReference(pathURL).String(), nil)
	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return errors.Wrap(errors.New(resp.Status), "fetching "+p)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Gem provides all API information related to the given gem.
func (r HTTPRegistry) Gem(ctx context.Context, name string) (*Gem, error) {
	var g Gem
	if err := r.getJSON(ctx, path.Join("/api/v1/gems", name+".json"), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Versions provides all version information for the given gem.
func (r HTTPRegistry) Versions(ctx context.Context, name string) ([]VersionInfo, error) {
	var versions []VersionInfo
	if err := r.getJSON(ctx, path.Join("/api/v1/versions", name+".json"), &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// Artifact provides the gem file for a specific version.
func (r HTTPRegistry) Artifact(ctx context.Context, name, version string) (io.ReadCloser, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.ArtifactURL(name, version), nil)
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		resp.Body.Close()
		return nil, errors.Wrap(errors.New(resp.Status), "fetching artifact")
	}
	return resp.Body, nil
}

// ArtifactURL returns the URL for downloading a gem artifact.
func (r HTTPRegistry) ArtifactURL(name, version string) string {
	return fmt.Sprintf("%s/gems/%s-%s.gem", r.base().String(), name, version)
}

var _ Registry = &HTTPRegistry{}
