package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistered(t *testing.T) {
	t.Parallel()

	// Verify all metrics are non-nil (registered via promauto on package init).
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, HTTPRequestsTotal)
	assert.NotNil(t, HealthzUp)
	assert.NotNil(t, ReadyzUp)
	assert.NotNil(t, TicksTotal)
	assert.NotNil(t, TickDuration)
	assert.NotNil(t, RulesEvaluatedTotal)
	assert.NotNil(t, EvalFaultsTotal)
	assert.NotNil(t, AlertsFiredTotal)
	assert.NotNil(t, AlertsSuppressedTotal)
	assert.NotNil(t, AlertsResolvedTotal)
	assert.NotNil(t, AlertsEscalatedTotal)
	assert.NotNil(t, AckLatency)
	assert.NotNil(t, DispatchesTotal)
	assert.NotNil(t, DispatchFailuresTotal)
}
