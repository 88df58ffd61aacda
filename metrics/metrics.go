// Package metrics exposes dispatch counters through Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is what the services report to.
type Recorder interface {
	Transition(event, outcome string)
	TxDuration(operation string, d time.Duration)
	OutboxDelivery(result string)
	LocationPing(result string)
	Candidates(policy string, n int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Transition(string, string)        {}
func (Nop) TxDuration(string, time.Duration) {}
func (Nop) OutboxDelivery(string)            {}
func (Nop) LocationPing(string)              {}
func (Nop) Candidates(string, int)           {}

// PromRecorder records into Prometheus collectors.
type PromRecorder struct {
	transitions *prometheus.CounterVec
	txDuration  *prometheus.HistogramVec
	outbox      *prometheus.CounterVec
	pings       *prometheus.CounterVec
	candidates  *prometheus.HistogramVec
}

// NewPromRecorder registers the dispatch collectors on reg, or on the default
// registerer when reg is nil. Collectors already registered are reused.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PromRecorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking state machine events by outcome",
		}, []string{"event", "outcome"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_transaction_duration_seconds",
			Help:    "Duration of dispatch transactions",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_deliveries_total",
			Help: "Outbox delivery attempts by result",
		}, []string{"result"}),
		pings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "professional_location_pings_total",
			Help: "Location pings by result",
		}, []string{"result"}),
		candidates: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matching_candidates",
			Help:    "Number of candidates found per match",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"policy"}),
	}

	var err error
	if r.transitions, err = register(reg, r.transitions); err != nil {
		return nil, err
	}
	if r.txDuration, err = register(reg, r.txDuration); err != nil {
		return nil, err
	}
	if r.outbox, err = register(reg, r.outbox); err != nil {
		return nil, err
	}
	if r.pings, err = register(reg, r.pings); err != nil {
		return nil, err
	}
	if r.candidates, err = register(reg, r.candidates); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *PromRecorder) Transition(event, outcome string) {
	r.transitions.WithLabelValues(event, outcome).Inc()
}

func (r *PromRecorder) TxDuration(operation string, d time.Duration) {
	r.txDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (r *PromRecorder) OutboxDelivery(result string) {
	r.outbox.WithLabelValues(result).Inc()
}

func (r *PromRecorder) LocationPing(result string) {
	r.pings.WithLabelValues(result).Inc()
}

func (r *PromRecorder) Candidates(policy string, n int) {
	r.candidates.WithLabelValues(policy).Observe(float64(n))
}
