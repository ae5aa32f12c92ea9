// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package progress tracks byte-level install progress and exposes it
// both to an in-process callback sink and, optionally, as
// Prometheus counters following the atomic-counter-plus-custom-Collector
// shape.
package progress

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters accumulates bytes processed and exposes cancellation state.
// It is the install's progress sink: the directive executors report
// the bytes they copy through it so a UI or log line can show one
// running total. Downloads and preheat do not report to it.
type Counters struct {
	bytesDone      atomic.Int64
	bytesTotal     atomic.Int64
	cancelled      atomic.Bool
	onByteProgress atomic.Pointer[func(done, total int64)]
}

// NewCounters returns a ready-to-use Counters with no callback
// attached.
func NewCounters() *Counters {
	return &Counters{}
}

// SetTotal fixes the expected total byte count up front, typically
// computed from the sum of every directive's declared size.
func (c *Counters) SetTotal(total int64) {
	c.bytesTotal.Store(total)
}

// AddBytes reports n additional bytes processed and invokes the
// byte_progress callback, if one is set.
func (c *Counters) AddBytes(n int64) {
	done := c.bytesDone.Add(n)
	if cb := c.onByteProgress.Load(); cb != nil {
		(*cb)(done, c.bytesTotal.Load())
	}
}

// OnByteProgress registers the callback invoked by AddBytes. Passing
// nil detaches any previously registered callback.
func (c *Counters) OnByteProgress(fn func(done, total int64)) {
	if fn == nil {
		c.onByteProgress.Store(nil)
		return
	}
	c.onByteProgress.Store(&fn)
}

// RequestCancellation marks the install as cancelled. The flag is
// exposed through Cancelled and the Collector; the scheduler and the
// executors do not consult it, so work already under way continues.
func (c *Counters) RequestCancellation() {
	c.cancelled.Store(true)
}

// Cancelled reports whether cancellation_requested has fired.
func (c *Counters) Cancelled() bool {
	return c.cancelled.Load()
}

// Snapshot returns the current (done, total) byte counts.
func (c *Counters) Snapshot() (done, total int64) {
	return c.bytesDone.Load(), c.bytesTotal.Load()
}

// Collector exposes Counters to Prometheus (bytes done as a counter,
// total bytes and the cancellation flag as gauges), following the
// Desc/Collect split rather than registering a global promauto
// counter per call site.
type Collector struct {
	counters   *Counters
	doneDesc   *prometheus.Desc
	totalDesc  *prometheus.Desc
	cancelDesc *prometheus.Desc
}

// NewCollector wraps counters for registration with a
// prometheus.Registerer.
func NewCollector(counters *Counters) *Collector {
	return &Collector{
		counters: counters,
		doneDesc: prometheus.NewDesc(
			"hoolamike_install_bytes_done_total",
			"Bytes processed so far across every directive.",
			nil, nil,
		),
		totalDesc: prometheus.NewDesc(
			"hoolamike_install_bytes_total",
			"Total bytes this install is expected to process.",
			nil, nil,
		),
		cancelDesc: prometheus.NewDesc(
			"hoolamike_install_cancellation_requested",
			"1 if cancellation has been requested for the running install.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.doneDesc
	ch <- c.totalDesc
	ch <- c.cancelDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	done, total := c.counters.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.doneDesc, prometheus.CounterValue, float64(done))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(total))
	cancelled := 0.0
	if c.counters.Cancelled() {
		cancelled = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.cancelDesc, prometheus.GaugeValue, cancelled)
}
