package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AccessMetrics records document permission decisions and invite lifecycle
// transitions.
type AccessMetrics struct {
	decisions *prometheus.CounterVec
	invites   *prometheus.CounterVec
}

// NewAccessMetrics registers the access metrics on the provided registerer.
func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	if reg == nil {
		return &AccessMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_access_decisions",
		Help: "Document access decisions by result and tier.",
	}, []string{"result", "tier"})
	invites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invite_lifecycle",
		Help: "Invitation lifecycle transitions.",
	}, []string{"transition"})
	reg.MustRegister(decisions, invites)
	return &AccessMetrics{
		decisions: decisions,
		invites:   invites,
	}
}

// IncAllowed records a granted access decision for the given tier
// ("owner" or "grant").
func (a *AccessMetrics) IncAllowed(tier string) {
	if a == nil || a.decisions == nil {
		return
	}
	a.decisions.WithLabelValues("allow", normalizeLabel(tier)).Inc()
}

// IncDenied records a denied access decision.
func (a *AccessMetrics) IncDenied(tier string) {
	if a == nil || a.decisions == nil {
		return
	}
	a.decisions.WithLabelValues("deny", normalizeLabel(tier)).Inc()
}

// IncInvite records an invite lifecycle transition
// ("created", "accepted", "cancelled", "expired").
func (a *AccessMetrics) IncInvite(transition string) {
	if a == nil || a.invites == nil {
		return
	}
	a.invites.WithLabelValues(normalizeLabel(transition)).Inc()
}
