// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/debler/debler/internal/cache"
)

func TestCachedClient(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.WriteString(w, "payload")
	}))
	defer srv.Close()
	c := NewCachedClient(http.DefaultClient, &cache.CoalescingMemoryCache{})
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/artifact", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := c.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != "payload" {
			t.Errorf("body = %q, want %q", body, "payload")
		}
	}
	if hits != 1 {
		t.Errorf("server saw %d requests, want 1", hits)
	}
}

func TestCachedClientSkipsNonGet(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()
	c := NewCachedClient(http.DefaultClient, &cache.CoalescingMemoryCache{})
	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := c.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	if hits != 2 {
		t.Errorf("server saw %d requests, want 2", hits)
	}
}

func TestWithUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()
	c := &WithUserAgent{BasicClient: http.DefaultClient, UserAgent: "debler/1.0"}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got != "debler/1.0" {
		t.Errorf("User-Agent = %q, want %q", got, "debler/1.0")
	}
}
