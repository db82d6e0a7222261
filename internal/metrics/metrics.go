// Package metrics exposes Prometheus counters for code issuance, code
// verification outcomes and authorization denials.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	codesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_otp_issued_total",
		Help: "One-time codes issued, by purpose",
	}, []string{"purpose"})

	codeVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_otp_verifications_total",
		Help: "One-time code verification attempts, by purpose and outcome",
	}, []string{"purpose", "outcome"})

	authzDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_authz_denials_total",
		Help: "Requests denied by the authorization chain, by stage",
	}, []string{"stage"})
)

// CodeIssued records an issued code.
func CodeIssued(purpose string) {
	codesIssued.WithLabelValues(purpose).Inc()
}

// CodeVerified records the outcome of a verification attempt.
func CodeVerified(purpose, outcome string) {
	codeVerifications.WithLabelValues(purpose, outcome).Inc()
}

// Denied records a denial at the named chain stage.
func Denied(stage string) {
	authzDenials.WithLabelValues(stage).Inc()
}
