package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(codeVerifications.WithLabelValues("password-reset", "expired"))
	CodeVerified("password-reset", "expired")
	assert.Equal(t, before+1, testutil.ToFloat64(codeVerifications.WithLabelValues("password-reset", "expired")))

	before = testutil.ToFloat64(codesIssued.WithLabelValues("email-change"))
	CodeIssued("email-change")
	assert.Equal(t, before+1, testutil.ToFloat64(codesIssued.WithLabelValues("email-change")))

	before = testutil.ToFloat64(authzDenials.WithLabelValues("service_key"))
	Denied("service_key")
	assert.Equal(t, before+1, testutil.ToFloat64(authzDenials.WithLabelValues("service_key")))
}

func TestMetricsRegistered(t *testing.T) {
	CodeIssued("registration-email")
	CodeVerified("registration-email", "ok")
	Denied("bearer")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	registered := map[string]bool{}
	for _, f := range families {
		registered[f.GetName()] = true
	}
	for _, name := range []string{
		"gatekeeper_otp_issued_total",
		"gatekeeper_otp_verifications_total",
		"gatekeeper_authz_denials_total",
	} {
		assert.True(t, registered[name], name)
	}
}
