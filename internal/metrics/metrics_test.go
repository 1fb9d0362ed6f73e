package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestVerificationCounterByOutcome(t *testing.T) {
	before := testutil.ToFloat64(Verifications.WithLabelValues(OutcomeMismatch))
	Verifications.WithLabelValues(OutcomeMismatch).Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(Verifications.WithLabelValues(OutcomeMismatch)))
}

func TestHandlerExposesPaymentMetrics(t *testing.T) {
	OrdersCreated.Inc()
	Settlements.WithLabelValues("verify", "settled").Inc()

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "payments_orders_created_total")
	assert.Contains(t, w.Body.String(), `payments_settlements_total{result="settled",source="verify"}`)
}
