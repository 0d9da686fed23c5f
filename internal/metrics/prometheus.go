package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

var (
	settingsUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erpsettings_updates_total",
		Help: "Settings update requests by target kind and outcome",
	}, []string{"target", "outcome"})

	historyRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erpsettings_history_rows_total",
		Help: "Setting history rows written by action",
	}, []string{"action"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erpsettings_cache_lookups_total",
		Help: "Settings snapshot cache lookups by result",
	}, []string{"result"})

	testEmails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erpsettings_test_emails_total",
		Help: "Test emails sent by outcome",
	}, []string{"outcome"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erpsettings_rate_limited_total",
		Help: "Requests rejected by the rate limiter by route",
	}, []string{"route"})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "erpsettings_uptime_seconds",
		Help: "Time since server start in seconds",
	}, func() float64 { return time.Since(startTime).Seconds() })
)

// RecordUpdate counts one update request. target is "system" or "module";
// outcome is "ok" or the error class that stopped it.
func RecordUpdate(target, outcome string) {
	settingsUpdates.WithLabelValues(target, outcome).Inc()
}

func RecordHistory(action string, rows int) {
	if rows <= 0 {
		return
	}
	historyRows.WithLabelValues(action).Add(float64(rows))
}

func CacheHit()  { cacheLookups.WithLabelValues("hit").Inc() }
func CacheMiss() { cacheLookups.WithLabelValues("miss").Inc() }

func RecordTestEmail(sent bool) {
	outcome := "sent"
	if !sent {
		outcome = "failed"
	}
	testEmails.WithLabelValues(outcome).Inc()
}

func RecordRateLimited(route string) {
	rateLimited.WithLabelValues(route).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
