// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fdpermit implements the process-wide open-file budget every
// file-creating operation in the core acquires before opening a file.
// It wraps golang.org/x/sync/semaphore the way the rest of the core
// wraps other golang.org/x/sync primitives (see internal/nestedarchive
// for singleflight, internal/downloadcache for semaphore).
package fdpermit

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Permit is one slot in the global open-file budget. Release returns
// the slot; a Permit must not be released twice.
type Permit struct {
	pool     *Pool
	released bool
}

// Release returns the slot to the pool. Safe to call once; idempotent
// no-op on a zero-value Permit.
func (p *Permit) Release() {
	if p == nil || p.released || p.pool == nil {
		return
	}
	p.released = true
	p.pool.sem.Release(1)
	atomic.AddInt64(&p.pool.inUse, -1)
}

// Pool is the global open-file counting semaphore: every
// file the core creates or opens for nested-archive extraction must
// hold a Permit first.
type Pool struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    int64
}

// Concurrency resolves the operator-configurable concurrency setting:
// half of CPU count, minimum 1.
func Concurrency(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// NewPool builds a Pool sized max(1, 20 * concurrency).
func NewPool(concurrency int) *Pool {
	capacity := int64(20 * concurrency)
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{sem: semaphore.NewWeighted(capacity), capacity: capacity}
}

// Capacity returns the configured number of slots.
func (p *Pool) Capacity() int64 { return p.capacity }

// InUse returns the number of slots currently held.
func (p *Pool) InUse() int64 {
	return atomic.LoadInt64(&p.inUse)
}

// Acquire is the async acquisition mode: it suspends the calling
// goroutine on ctx until a slot is free or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*Permit, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "acquiring file permit")
	}
	atomic.AddInt64(&p.inUse, 1)
	return &Permit{pool: p}, nil
}

// AcquireBlocking is the worker-thread acquisition mode for CPU-bound
// extraction: it blocks the calling goroutine (which the caller is
// expected to have dedicated to a worker-pool task) until a slot is
// free. context.Background is used so it cannot be interrupted by a
// request-scoped deadline; cancellation here is cooperative only.
func (p *Pool) AcquireBlocking() (*Permit, error) {
	return p.Acquire(context.Background())
}

// TempFileHolder owns a temp file created under a Permit: dropping it
// (Close) deletes the file and releases the permit, in that order, so
// the slot is freed only once the filesystem object is actually gone.
type TempFileHolder struct {
	Path   string
	permit *Permit
}

// NewTempFileHolder pairs a temp path with the permit that authorized
// creating it.
func NewTempFileHolder(path string, permit *Permit) *TempFileHolder {
	return &TempFileHolder{Path: path, permit: permit}
}

// Close removes the temp file and releases the permit. Safe to call
// more than once.
func (h *TempFileHolder) Close() error {
	if h == nil {
		return nil
	}
	var err error
	if h.Path != "" {
		if rmErr := os.Remove(h.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
		h.Path = ""
	}
	h.permit.Release()
	return err
}
