// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/catalog"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// fakeStore is an in-memory Store tracking the calls the runner makes.
type fakeStore struct {
	pending []int64
	failed  []int64

	claims   []int64
	claimErr map[int64]error
	resets   []int64
	updates  map[int64]string
}

func newFakeStore(pending ...int64) *fakeStore {
	return &fakeStore{
		pending:  pending,
		claimErr: make(map[int64]error),
		updates:  make(map[int64]string),
	}
}

func (s *fakeStore) NextPending(ctx context.Context) (int64, error) {
	for _, id := range s.pending {
		if s.updates[id] == "" {
			return id, nil
		}
	}
	return 0, catalog.ErrNotFound
}

func (s *fakeStore) NextFailed(ctx context.Context) (int64, error) {
	for _, id := range s.failed {
		if s.updates[id] == "" {
			return id, nil
		}
	}
	return 0, catalog.ErrNotFound
}

func (s *fakeStore) ListBuilds(ctx context.Context, state string) ([]int64, error) {
	if state == catalog.ResultFailed {
		return s.failed, nil
	}
	return s.pending, nil
}

func (s *fakeStore) BuildData(ctx context.Context, id int64) (*catalog.BuildData, error) {
	return &catalog.BuildData{
		Revision:     catalog.Revision{ID: id, Version: "1.0-1"},
		Package:      catalog.Package{Name: "demo"},
		PackagerName: "bundler",
	}, nil
}

func (s *fakeStore) ClaimBuild(ctx context.Context, id int64, builder string) error {
	if err := s.claimErr[id]; err != nil {
		return err
	}
	s.claims = append(s.claims, id)
	return nil
}

func (s *fakeStore) ResetBuild(ctx context.Context, id int64) error {
	s.resets = append(s.resets, id)
	for i, f := range s.failed {
		if f == id {
			s.failed = append(s.failed[:i], s.failed[i+1:]...)
			s.pending = append(s.pending, id)
			break
		}
	}
	return nil
}

func (s *fakeStore) UpdateBuild(ctx context.Context, id int64, result string) error {
	s.updates[id] = result
	return nil
}

// fakeBuilder succeeds or fails per the configured error.
type fakeBuilder struct {
	err error
}

func (b *fakeBuilder) DebName() string                  { return "debler-rubygem-demo" }
func (b *fakeBuilder) DebVersion() string               { return "1.0-1" }
func (b *fakeBuilder) Generate(ctx context.Context) error { return nil }
func (b *fakeBuilder) Run(ctx context.Context) error      { return b.err }
func (b *fakeBuilder) Upload(ctx context.Context) error   { return nil }

func newRunner(s *fakeStore, errs map[int64]error) (*Runner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Runner{
		Store: s,
		New: func(data *catalog.BuildData) (builder.Builder, error) {
			return &fakeBuilder{err: errs[data.Revision.ID]}, nil
		},
		Out: out,
	}, out
}

func TestRunAllPending(t *testing.T) {
	s := newFakeStore(1, 2, 3)
	r, _ := newRunner(s, nil)
	sum, err := r.Run(context.Background(), Options{Builder: "test"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum != (Summary{Total: 3, Succeeded: 3}) {
		t.Errorf("summary = %+v", sum)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, s.claims); diff != "" {
		t.Errorf("claims mismatch (-want +got):\n%s", diff)
	}
	for id := int64(1); id <= 3; id++ {
		if got := s.updates[id]; got != catalog.ResultFinished {
			t.Errorf("build %d result = %q", id, got)
		}
	}
	if got := sum.String(); got != "Built 3 packages: 3 successful, 0 failed" {
		t.Errorf("summary string = %q", got)
	}
}

func TestRunRecordsFailures(t *testing.T) {
	s := newFakeStore(1, 2)
	r, _ := newRunner(s, map[int64]error{
		1: &builder.BuildError{Err: errors.New("dpkg-buildpackage exited 2")},
	})
	sum, err := r.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum != (Summary{Total: 2, Succeeded: 1, Failed: 1}) {
		t.Errorf("summary = %+v", sum)
	}
	if got := s.updates[1]; got != catalog.ResultFailed {
		t.Errorf("build 1 result = %q", got)
	}
	if got := s.updates[2]; got != catalog.ResultFinished {
		t.Errorf("build 2 result = %q", got)
	}
}

func TestRunFailFast(t *testing.T) {
	s := newFakeStore(1, 2)
	r, _ := newRunner(s, map[int64]error{1: errors.New("boom")})
	sum, err := r.Run(context.Background(), Options{FailFast: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum != (Summary{Total: 1, Failed: 1}) {
		t.Errorf("summary = %+v", sum)
	}
	if _, built := s.updates[2]; built {
		t.Error("build 2 ran despite fail-fast")
	}
}

func TestRunIncognito(t *testing.T) {
	s := newFakeStore()
	s.pending = nil
	r, _ := newRunner(s, nil)
	sum, err := r.Run(context.Background(), Options{Incognito: true, IDs: []int64{7}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum != (Summary{Total: 1, Succeeded: 1}) {
		t.Errorf("summary = %+v", sum)
	}
	if len(s.claims) != 0 {
		t.Errorf("incognito run claimed builds: %v", s.claims)
	}
	if len(s.updates) != 0 {
		t.Errorf("incognito run finalized builds: %v", s.updates)
	}
	if len(s.resets) != 0 {
		t.Errorf("incognito run reset builds: %v", s.resets)
	}
}

func TestRunAlreadyClaimedSkips(t *testing.T) {
	s := newFakeStore(1, 2)
	s.claimErr[1] = catalog.ErrAlreadyClaimed
	r, out := newRunner(s, nil)
	sum, err := r.Run(context.Background(), Options{IDs: []int64{1, 2}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum != (Summary{Total: 1, Succeeded: 1}) {
		t.Errorf("summary = %+v", sum)
	}
	if !strings.Contains(out.String(), "skipping build 1") {
		t.Errorf("output lacks skip notice:\n%s", out.String())
	}
}

func TestRunRetryResets(t *testing.T) {
	s := newFakeStore()
	s.failed = []int64{5}
	r, _ := newRunner(s, nil)
	sum, err := r.Run(context.Background(), Options{Retry: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum != (Summary{Total: 1, Succeeded: 1}) {
		t.Errorf("summary = %+v", sum)
	}
	if diff := cmp.Diff([]int64{5}, s.resets); diff != "" {
		t.Errorf("resets mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCancel(t *testing.T) {
	s := newFakeStore(1, 2)
	r, _ := newRunner(s, nil)
	if _, err := r.Run(context.Background(), Options{Cancel: true, IDs: []int64{2}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.updates[2]; got != catalog.ResultCanceled {
		t.Errorf("build 2 result = %q", got)
	}
	if _, touched := s.updates[1]; touched {
		t.Error("cancel touched an unrelated build")
	}
}

func TestRunLimit(t *testing.T) {
	s := newFakeStore(1, 2, 3)
	r, _ := newRunner(s, nil)
	sum, err := r.Run(context.Background(), Options{Limit: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Total != 2 {
		t.Errorf("total = %d, want 2", sum.Total)
	}
}

func TestRunListOnly(t *testing.T) {
	s := newFakeStore(4)
	r, out := newRunner(s, nil)
	sum, err := r.Run(context.Background(), Options{ListOnly: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Total != 0 {
		t.Errorf("list-only run built packages: %+v", sum)
	}
	if !strings.Contains(out.String(), "4\tbundler\tdemo\t1.0-1") {
		t.Errorf("listing output = %q", out.String())
	}
}
