// Package metrics provides observability for the game server.
// T030: Prometheus collectors for load-test and balance analysis.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vps_clock_ticks_total",
			Help: "Clock tick cycles processed",
		},
	)

	GameDaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vps_game_days_total",
			Help: "In-game day boundaries crossed",
		},
	)

	RequestsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vps_requests_generated_total",
			Help: "Customer requests created by the generator",
		},
		[]string{"tier"},
	)

	ProvisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vps_provisions_total",
			Help: "Provisioning attempts",
		},
		[]string{"result"}, // success|insufficient_capacity|cancelled
	)

	PaymentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vps_payments_total",
			Help: "Rent installments credited to the ledger",
		},
	)

	RenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vps_renewals_total",
			Help: "Rental expiration decisions",
		},
		[]string{"outcome"}, // renewed|expired
	)

	FundsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vps_company_funds",
			Help: "Current company funds",
		},
	)

	ReputationGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vps_company_reputation",
			Help: "Current company star rating",
		},
	)

	OccupiedSlotsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vps_rack_occupied_slots",
			Help: "Slots occupied across all racks",
		},
	)

	WSConnectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vps_ws_connections",
			Help: "Active dashboard WebSocket connections",
		},
	)

	EventWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vps_event_write_errors_total",
			Help: "Event log persistence failures",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		GameDaysTotal,
		RequestsGeneratedTotal,
		ProvisionsTotal,
		PaymentsTotal,
		RenewalsTotal,
		FundsGauge,
		ReputationGauge,
		OccupiedSlotsGauge,
		WSConnectionsGauge,
		EventWriteErrors,
	)
}

// Register mounts the /metrics endpoint on the given mux.
func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
