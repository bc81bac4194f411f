package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaiseInvariant(t *testing.T) {
	invariantsMetric.Reset()
	RaiseInvariant("utils", "test_violation", "Raised from a test.", "attempt", 1)
	RaiseInvariant("utils", "test_violation", "Raised from a test.", "attempt", 2)
	assert.Equal(t, 2, GetMetricValue("utils" /*module*/, "test_violation" /*invariantType*/))
	assert.Zero(t, GetMetricValue("utils" /*module*/, "never_raised" /*invariantType*/))
}
