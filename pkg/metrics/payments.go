package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts settlement outcomes per provider.
type PaymentMetrics struct {
	settlements *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_settlements_total",
		Help: "Settlement events applied, labeled by provider and outcome.",
	}, []string{"provider", "outcome"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_settlement_duplicates_total",
		Help: "Settlement events skipped because they were already applied.",
	}, []string{"provider"})
	reg.MustRegister(settlements, duplicates)
	return &PaymentMetrics{settlements: settlements, duplicates: duplicates}
}

// IncSettlement counts an applied settlement for the provider/outcome pair.
func (p *PaymentMetrics) IncSettlement(provider, outcome string) {
	if p == nil || p.settlements == nil {
		return
	}
	p.settlements.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncDuplicate counts a settlement skipped by the idempotency guard.
func (p *PaymentMetrics) IncDuplicate(provider string) {
	if p == nil || p.duplicates == nil {
		return
	}
	p.duplicates.WithLabelValues(normalizeLabel(provider)).Inc()
}
