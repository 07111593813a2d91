// Package metrics exposes voipbridge statistics as a Prometheus collector
// that queries the database at scrape time.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CallStatsProvider exposes call log counters.
type CallStatsProvider interface {
	CountByDirection(ctx context.Context) (map[string]int64, error)
	CountActive(ctx context.Context) (int64, error)
}

// UserStatusCounter returns user counts grouped by presence status.
type UserStatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// RecordingCounter returns the number of stored recordings.
type RecordingCounter interface {
	Count(ctx context.Context) (int64, error)
}

// EventCounter returns the PBX event journal size.
type EventCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Collector is a prometheus.Collector that gathers voipbridge metrics at
// scrape time. Any provider may be nil if unavailable.
type Collector struct {
	calls      CallStatsProvider
	users      UserStatusCounter
	recordings RecordingCounter
	events     EventCounter
	startTime  time.Time

	// Metric descriptors.
	callsTotalDesc  *prometheus.Desc
	activeCallsDesc *prometheus.Desc
	userStatusDesc  *prometheus.Desc
	recordingsDesc  *prometheus.Desc
	eventsDesc      *prometheus.Desc
	uptimeDesc      *prometheus.Desc
}

// NewCollector creates a new metrics collector.
func NewCollector(
	calls CallStatsProvider,
	users UserStatusCounter,
	recordings RecordingCounter,
	events EventCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		calls:      calls,
		users:      users,
		recordings: recordings,
		events:     events,
		startTime:  startTime,

		callsTotalDesc: prometheus.NewDesc(
			"voipbridge_calls_total",
			"Total number of logged calls",
			[]string{"direction"}, nil,
		),
		activeCallsDesc: prometheus.NewDesc(
			"voipbridge_active_calls",
			"Number of calls currently ringing or in progress",
			nil, nil,
		),
		userStatusDesc: prometheus.NewDesc(
			"voipbridge_users",
			"Number of active VoIP users by presence status",
			[]string{"status"}, nil,
		),
		recordingsDesc: prometheus.NewDesc(
			"voipbridge_recordings_stored",
			"Number of stored call recordings",
			nil, nil,
		),
		eventsDesc: prometheus.NewDesc(
			"voipbridge_pbx_events_total",
			"Size of the PBX event journal",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"voipbridge_uptime_seconds",
			"Seconds since the voipbridge process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.callsTotalDesc
	ch <- c.activeCallsDesc
	ch <- c.userStatusDesc
	ch <- c.recordingsDesc
	ch <- c.eventsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.calls != nil {
		counts, err := c.calls.CountByDirection(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by direction", "error", err)
		} else {
			for _, dir := range []string{"inbound", "outbound"} {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(counts[dir]), dir,
				)
			}
		}

		active, err := c.calls.CountActive(ctx)
		if err != nil {
			slog.Error("metrics: failed to count active calls", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.activeCallsDesc, prometheus.GaugeValue, float64(active),
			)
		}
	}

	if c.users != nil {
		counts, err := c.users.CountByStatus(ctx)
		if err != nil {
			slog.Error("metrics: failed to count users by status", "error", err)
		} else {
			for _, status := range []string{"available", "busy", "offline", "away"} {
				ch <- prometheus.MustNewConstMetric(
					c.userStatusDesc, prometheus.GaugeValue,
					float64(counts[status]), status,
				)
			}
		}
	}

	if c.recordings != nil {
		n, err := c.recordings.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count recordings", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.recordingsDesc, prometheus.GaugeValue, float64(n),
			)
		}
	}

	if c.events != nil {
		n, err := c.events.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count events", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.eventsDesc, prometheus.CounterValue, float64(n),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
