// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	received = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "eventrpc",
		Name:      "frames_received",
	}, []string{"procedure", "result"})
	sent = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "eventrpc",
		Name:      "frames_sent",
	}, []string{"procedure"})
	peersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "eventrpc",
		Name:      "peers",
	})

	// Results: ok, decode_error, handler_error, release_error.
	shimEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "eventrpc",
		Name:      "shim_events",
	}, []string{"direction", "result"})
	registryMisses = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "eventrpc",
		Name:      "registry_misses",
	})
	registryConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "eventrpc",
		Name:      "registry_conflicts",
	})
	queueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "eventrpc",
		Name:      "queue_dropped",
	})
)
