package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts status reads served from a fresh cache entry.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handwave_cache_hits_total",
			Help: "Total number of device status reads served from cache",
		},
	)

	// CacheMisses counts status reads that triggered a network refresh.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handwave_cache_misses_total",
			Help: "Total number of device status reads that required a refresh",
		},
	)

	// RefreshesTotal counts per-device refresh attempts by result.
	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handwave_refreshes_total",
			Help: "Total number of device status refresh attempts",
		},
		[]string{"result"},
	)

	// CommandsTotal counts dispatched device commands by action and result.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handwave_commands_total",
			Help: "Total number of device commands dispatched",
		},
		[]string{"action", "result"},
	)

	// DevicesOnline tracks how many configured devices are currently online.
	DevicesOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "handwave_devices_online",
			Help: "Number of devices currently reachable",
		},
	)
)
