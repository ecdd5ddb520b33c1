// Package telemetry wires the driver's structured logging and metrics:
// logrus for events, Prometheus gauges/counters for the scan loop's
// running stats, and xid to tag each bus transaction for log correlation.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Metrics are the Prometheus collectors for the scan loop. Register them
// once against a prometheus.Registerer at startup. cmd/baikald sets
// HashesPerSecond after every tick; nothing updates Temperature,
// AcceptedNonces or HardwareErrors.
type Metrics struct {
	HashesPerSecond *prometheus.GaugeVec
	Temperature     *prometheus.GaugeVec
	AcceptedNonces  *prometheus.CounterVec
	HardwareErrors  *prometheus.CounterVec
}

// NewMetrics builds the collector set, labeled by miner_id.
func NewMetrics() *Metrics {
	return &Metrics{
		HashesPerSecond: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "baikal",
			Name:      "hashrate_hs",
			Help:      "Instantaneous hashrate in hashes/second.",
		}, []string{"miner_id"}),
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "baikal",
			Name:      "temperature_celsius",
			Help:      "Last reported board temperature.",
		}, []string{"miner_id"}),
		AcceptedNonces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "baikal",
			Name:      "nonces_accepted_total",
			Help:      "Nonces that passed device-target verification.",
		}, []string{"miner_id"}),
		HardwareErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "baikal",
			Name:      "hardware_errors_total",
			Help:      "Nonces rejected by device-target verification.",
		}, []string{"miner_id"}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate registration since that indicates a wiring bug, not a
// recoverable runtime condition.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.HashesPerSecond, m.Temperature, m.AcceptedNonces, m.HardwareErrors)
}

// NewTransactionID returns a short, sortable identifier for tagging one
// bus transaction's log lines across a request/response round trip.
func NewTransactionID() string {
	return xid.New().String()
}

// NewLogger returns a logrus logger preconfigured with the text
// formatter. Only cmd/baikald logs through it, tagging per-miner lines
// with a miner_id field.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}
