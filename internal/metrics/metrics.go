// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package metrics defines prometheus collectors of the custody engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "runecustody"

var (
	// DraftRounds observes fee loop rounds needed for a draft to converge.
	DraftRounds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "txbuilder",
		Name:      "draft_rounds",
		Help:      "Fee loop rounds until the draft converged",
		Buckets:   prometheus.LinearBuckets(1, 1, 8),
	}, []string{"kind"})

	// DraftFailures counts drafts that could not be built.
	DraftFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "txbuilder",
		Name:      "draft_failures_total",
		Help:      "Drafts that failed by kind and reason",
	}, []string{"kind", "reason"})

	// Broadcasts counts submitted transactions.
	Broadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "broadcasts_total",
		Help:      "Broadcast attempts by transaction kind and result",
	}, []string{"kind", "result"})

	// PendingReveals tracks reveals waiting for the commit confirmations.
	PendingReveals = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "pending_reveals",
		Help:      "Etching reveals waiting for commit confirmations",
	})

	// IngestedUTXOs counts outputs recorded into the pool.
	IngestedUTXOs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "utxos_total",
		Help:      "Outputs recorded into the custody pool by class",
	}, []string{"class"})

	registerOnce sync.Once
)

// Register registers all collectors in the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DraftRounds, DraftFailures, Broadcasts, PendingReveals, IngestedUTXOs)
	})
}

// Handler returns http handler of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
