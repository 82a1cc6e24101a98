package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MysteryMetrics Mystery Match 관측 지표
type MysteryMetrics interface {
	MatchCreated(premium bool)
	FindMatchRejected(reason string)
	FindMatchElapsed(elapsed time.Duration)
	MessageSent()
	UnlockReached(level int)
	MatchesExpired(n int64)
	ConnectionsOpen(n int)
}

type prometheusMetrics struct {
	matchesCreated   *prometheus.CounterVec
	findRejected     *prometheus.CounterVec
	findElapsed      prometheus.Histogram
	messagesSent     prometheus.Counter
	unlocksReached   *prometheus.CounterVec
	matchesExpired   prometheus.Counter
	connectionsGauge prometheus.Gauge
}

// New registers the collectors on registry.
func New(registry prometheus.Registerer) MysteryMetrics {
	factory := promauto.With(registry)

	return &prometheusMetrics{
		matchesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "luvhive_mystery_matches_created_total",
			Help: "Mystery matches created, by requester tier",
		}, []string{"tier"}),
		findRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "luvhive_mystery_find_match_rejected_total",
			Help: "find-match calls that returned a business-rule failure",
		}, []string{"reason"}),
		findElapsed: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "luvhive_mystery_find_match_duration_ms",
			Help:    "find-match latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "luvhive_mystery_messages_sent_total",
			Help: "Chat messages accepted on mystery matches",
		}),
		unlocksReached: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "luvhive_mystery_unlocks_total",
			Help: "Unlock levels reached",
		}, []string{"level"}),
		matchesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "luvhive_mystery_matches_expired_total",
			Help: "Matches moved to expired by the sweeper",
		}),
		connectionsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "luvhive_mystery_ws_connections",
			Help: "Open real-time connections on this instance",
		}),
	}
}

func (m *prometheusMetrics) MatchCreated(premium bool) {
	tier := "free"
	if premium {
		tier = "premium"
	}
	m.matchesCreated.With(prometheus.Labels{"tier": tier}).Inc()
}

func (m *prometheusMetrics) FindMatchRejected(reason string) {
	m.findRejected.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m *prometheusMetrics) FindMatchElapsed(elapsed time.Duration) {
	m.findElapsed.Observe(float64(elapsed.Milliseconds()))
}

func (m *prometheusMetrics) MessageSent() {
	m.messagesSent.Inc()
}

func (m *prometheusMetrics) UnlockReached(level int) {
	m.unlocksReached.With(prometheus.Labels{"level": strconv.Itoa(level)}).Inc()
}

func (m *prometheusMetrics) MatchesExpired(n int64) {
	m.matchesExpired.Add(float64(n))
}

func (m *prometheusMetrics) ConnectionsOpen(n int) {
	m.connectionsGauge.Set(float64(n))
}

// Nop 지표 수집을 하지 않는 구현 (테스트용)
type Nop struct{}

func (Nop) MatchCreated(bool) {}
func (Nop) FindMatchRejected(string) {}
func (Nop) FindMatchElapsed(time.Duration) {}
func (Nop) MessageSent() {}
func (Nop) UnlockReached(int) {}
func (Nop) MatchesExpired(int64) {}
func (Nop) ConnectionsOpen(int) {}
