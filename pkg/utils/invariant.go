// Invariants are conditions that only fail when offline itself has a bug: a negative quota handed to a store,
// byte accounting dropping below zero, a foreign element pushed onto the eviction heap. Raising one logs an error
// and bumps a counter that alerting can watch, instead of crashing the host process. The caller still owns the
// recovery path, usually clamping the value or returning early.
//
// Failures caused by the outside world (a full quota, a missing snapshot file) are not invariants.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "invariants_total",
	Help: "The total number of invariant violations",
}, []string{
	"module", // The package or component that detected the violation.
	"type",   // A stable snake_case identifier of the violated condition.
})

// RaiseInvariant records a violated invariant. It panics in test mode so broken assumptions fail loudly in CI.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.With("invariant", invariantType, "module", module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetMetricValue returns how many times the invariant `invariantType` of `module` has been raised.
func GetMetricValue(module, invariantType string) int {
	metric := &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(module, invariantType).Write(metric); err != nil {
		slog.Error("Failed to read invariant metric.", "module", module, "type", invariantType, "error", err)
		return 0
	}
	return int(metric.GetCounter().GetValue())
}
