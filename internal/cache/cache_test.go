// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
)

func TestCoalescingMemoryCache(t *testing.T) {
	c := &CoalescingMemoryCache{}
	if _, err := c.Get("missing"); err != ErrNotExist {
		t.Errorf("Get on empty cache: got %v, want ErrNotExist", err)
	}
	var fetches atomic.Int32
	fetch := func() (any, error) {
		fetches.Add(1)
		return "value", nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrSet("key", fetch)
			if err != nil || v != "value" {
				t.Errorf("GetOrSet: got (%v, %v)", v, err)
			}
		}()
	}
	wg.Wait()
	if n := fetches.Load(); n != 1 {
		t.Errorf("fetch ran %d times, want 1", n)
	}
}

func TestCoalescingMemoryCacheErrorNotRetained(t *testing.T) {
	c := &CoalescingMemoryCache{}
	boom := errors.New("boom")
	if _, err := c.GetOrSet("key", func() (any, error) { return nil, boom }); err != boom {
		t.Fatalf("GetOrSet: got %v, want boom", err)
	}
	// A failed fetch must not poison the key.
	v, err := c.GetOrSet("key", func() (any, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Errorf("GetOrSet after failure: got (%v, %v), want (42, nil)", v, err)
	}
}
