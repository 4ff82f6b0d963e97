package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/logo-monitor/internal/logic"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestObserveProbe(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveProbe(20*time.Millisecond, nil)
	m.ObserveProbe(30*time.Millisecond, nil)
	m.ObserveProbe(5*time.Second, errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SamplesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesTotal.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProbeLatency))
}

func TestObserveState(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveState(logic.ConfirmedState{ConfirmedHealthy: true, Power: 12.5})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmedHealthy))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.PowerKW))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConsecutiveFaults))

	m.ObserveState(logic.ConfirmedState{ConfirmedHealthy: false, Power: -1, ConsecutiveFaults: 4})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConfirmedHealthy))
	assert.Equal(t, -1.0, testutil.ToFloat64(m.PowerKW))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ConsecutiveFaults))
}

func TestObserveTransition(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveTransition(logic.Event{Type: logic.EventFaultConfirmed})
	m.ObserveTransition(logic.Event{Type: logic.EventRecoveryConfirmed})
	m.ObserveTransition(logic.Event{Type: logic.EventFaultConfirmed})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("fault-confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("recovery-confirmed")))
}

func TestObserveDeliveries(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveNotification(nil)
	m.ObserveNotification(errors.New("blocked"))
	m.ObserveMQTTPublish(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MQTTPublishTotal.WithLabelValues("success")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveTransition(logic.Event{Type: logic.EventFaultConfirmed})
	m.ObserveState(logic.ConfirmedState{ConfirmedHealthy: true})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `logo_monitor_transitions_total{event="fault-confirmed"} 1`)
	assert.Contains(t, string(body), "logo_monitor_confirmed_healthy 1")
}

func TestNewRegistersOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
