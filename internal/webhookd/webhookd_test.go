// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package webhookd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/config"
	"github.com/google/go-cmp/cmp"

	// Register the packagers the endpoint dispatches on.
	_ "github.com/debler/debler/pkg/packager/bundler"
	_ "github.com/debler/debler/pkg/packager/yarn"
)

type scheduledBuild struct {
	SlotID int64
	Opts   catalog.ScheduleOpts
}

// fakeStore serves a single tracked package with one slot and version.
type fakeStore struct {
	packager  *catalog.Packager
	pkg       *catalog.Package
	versions  map[string]bool
	scheduled []scheduledBuild
}

func (s *fakeStore) Packager(ctx context.Context, name string) (*catalog.Packager, error) {
	if s.packager == nil || s.packager.Name != name {
		return nil, catalog.ErrNotFound
	}
	return s.packager, nil
}

func (s *fakeStore) PackageInfo(ctx context.Context, packagerID int64, name, debName string) (*catalog.Package, error) {
	if s.pkg == nil || s.pkg.Name != name {
		return nil, catalog.ErrNotFound
	}
	return s.pkg, nil
}

func (s *fakeStore) HasVersion(ctx context.Context, slotID int64, v string) (bool, error) {
	return s.versions[v], nil
}

func (s *fakeStore) ScheduleBuild(ctx context.Context, slot *catalog.Slot, opts catalog.ScheduleOpts) (int64, error) {
	s.scheduled = append(s.scheduled, scheduledBuild{SlotID: slot.ID, Opts: opts})
	return int64(len(s.scheduled)), nil
}

func trackedStore() *fakeStore {
	return &fakeStore{
		packager: &catalog.Packager{
			ID:      1,
			Name:    "bundler",
			Enabled: true,
			Config:  catalog.PackagerConfig{Webhook: true, APIKey: "sekrit"},
		},
		pkg: &catalog.Package{
			ID:      7,
			Name:    "rack",
			DebName: "debler-rubygem-rack",
			Slots:   []catalog.Slot{{ID: 3, Key: "2.0"}},
		},
		versions: map[string]bool{"2.0.3": true},
	}
}

func newTestServer(s *fakeStore) *Server {
	return &Server{
		Catalog: s,
		Config: &config.Config{
			Distribution: "trusty",
			GemFormat:    []int{1, 2},
		},
	}
}

func auth(name, version, key string) string {
	sum := sha256.Sum256([]byte(name + version + key))
	return hex.EncodeToString(sum[:])
}

func trigger(t *testing.T, srv *Server, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"name": "rack", "version": "2.0.4"}`
	req := httptest.NewRequest(http.MethodPost, "/debler/updatetrigger/bundler",
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth("rack", "2.0.4", "sekrit"))
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestWebhookSchedulesBuild(t *testing.T) {
	store := trackedStore()
	w := trigger(t, newTestServer(store), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	if got, _ := io.ReadAll(w.Result().Body); string(got) != "OK" {
		t.Errorf("body = %q, want OK", got)
	}
	want := []scheduledBuild{{
		SlotID: 3,
		Opts: catalog.ScheduleOpts{
			Version:      "2.0.4",
			Format:       []int64{1, 2},
			Changelog:    "New upstream release",
			Distribution: "trusty",
		},
	}}
	if diff := cmp.Diff(want, store.scheduled); diff != "" {
		t.Errorf("scheduled builds mismatch (-want +got):\n%s", diff)
	}
}

func TestWebhookValidation(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*http.Request)
		want   int
	}{
		{
			name: "get not allowed",
			mutate: func(r *http.Request) {
				r.Method = http.MethodGet
			},
			want: http.StatusMethodNotAllowed,
		},
		{
			name: "unknown packager",
			mutate: func(r *http.Request) {
				r.URL.Path = "/debler/updatetrigger/cargo"
			},
			want: http.StatusNotFound,
		},
		{
			name: "packager not in catalog",
			mutate: func(r *http.Request) {
				r.URL.Path = "/debler/updatetrigger/yarn"
			},
			want: http.StatusNotFound,
		},
		{
			name: "missing authorization",
			mutate: func(r *http.Request) {
				r.Header.Del("Authorization")
			},
			want: http.StatusForbidden,
		},
		{
			name: "wrong content type",
			mutate: func(r *http.Request) {
				r.Header.Set("Content-Type", "text/plain")
			},
			want: http.StatusUnsupportedMediaType,
		},
		{
			name: "missing length",
			mutate: func(r *http.Request) {
				r.ContentLength = -1
			},
			want: http.StatusLengthRequired,
		},
		{
			name: "oversized body",
			mutate: func(r *http.Request) {
				r.ContentLength = 2 << 20
			},
			want: http.StatusRequestEntityTooLarge,
		},
		{
			name: "bad json",
			mutate: func(r *http.Request) {
				r.Body = io.NopCloser(strings.NewReader("{"))
				r.ContentLength = 1
			},
			want: http.StatusBadRequest,
		},
		{
			name: "missing fields",
			mutate: func(r *http.Request) {
				body := `{"name": "rack"}`
				r.Body = io.NopCloser(strings.NewReader(body))
				r.ContentLength = int64(len(body))
			},
			want: http.StatusBadRequest,
		},
		{
			name: "wrong signature",
			mutate: func(r *http.Request) {
				r.Header.Set("Authorization", auth("rack", "2.0.4", "wrong"))
			},
			want: http.StatusForbidden,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := trackedStore()
			w := trigger(t, newTestServer(store), tc.mutate)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			if len(store.scheduled) != 0 {
				t.Errorf("rejected request scheduled builds: %+v", store.scheduled)
			}
		})
	}
}

func TestWebhookDisabled(t *testing.T) {
	store := trackedStore()
	store.packager.Config.Webhook = false
	w := trigger(t, newTestServer(store), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWebhookSilentOutcomes(t *testing.T) {
	for _, tc := range []struct {
		name  string
		store func() *fakeStore
		body  string
	}{
		{
			name: "untracked package",
			store: func() *fakeStore {
				s := trackedStore()
				s.pkg = nil
				return s
			},
		},
		{
			name:  "untracked slot",
			store: trackedStore,
			body:  `{"name": "rack", "version": "3.0.0"}`,
		},
		{
			name:  "rerelease",
			store: trackedStore,
			body:  `{"name": "rack", "version": "2.0.3"}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.store()
			w := trigger(t, newTestServer(store), func(r *http.Request) {
				if tc.body == "" {
					return
				}
				r.Body = io.NopCloser(strings.NewReader(tc.body))
				r.ContentLength = int64(len(tc.body))
				version := strings.Split(strings.Split(tc.body, `"version": "`)[1], `"`)[0]
				r.Header.Set("Authorization", auth("rack", version, "sekrit"))
			})
			// The notifier always gets its 200; only the side effect differs.
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if len(store.scheduled) != 0 {
				t.Errorf("scheduled builds: %+v", store.scheduled)
			}
		})
	}
}

func TestWebhookRunsHook(t *testing.T) {
	store := trackedStore()
	store.packager.Config.Hook = []string{"notify", "{gem}", "{slot}", "{version}"}
	srv := newTestServer(store)
	var ran [][]string
	srv.Exec = func(ctx context.Context, args []string) error {
		ran = append(ran, args)
		return nil
	}
	if w := trigger(t, srv, nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := [][]string{{"notify", "rack", "2.0", "2.0.4"}}
	if diff := cmp.Diff(want, ran); diff != "" {
		t.Errorf("hook invocations mismatch (-want +got):\n%s", diff)
	}
}
