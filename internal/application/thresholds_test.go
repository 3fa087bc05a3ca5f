package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/application"
)

func TestThresholds_DefaultRules(t *testing.T) {
	th, err := application.NewThresholds(application.DefaultMinScore, application.DefaultThresholdRules(), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 3, th.For("pool pump", []string{"switch"}))
	assert.Equal(t, 4, th.For("bedroom light", []string{"light", "switch"}))
}

func TestThresholds_FirstMatchWins(t *testing.T) {
	rules := []application.ThresholdRule{
		{When: `"sensor" in Categories`, MinScore: 2},
		{When: `Target contains "pool"`, MinScore: 3},
	}
	th, err := application.NewThresholds(5, rules, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, th.For("pool temperature", []string{"sensor"}))
	assert.Equal(t, 3, th.For("pool light", []string{"light"}))
	assert.Equal(t, 5, th.For("porch light", []string{"light"}))
}

func TestThresholds_RejectsInvalidRules(t *testing.T) {
	_, err := application.NewThresholds(4, []application.ThresholdRule{{When: `Target +`, MinScore: 1}}, discardLogger())
	assert.Error(t, err)

	_, err = application.NewThresholds(4, []application.ThresholdRule{{When: `len(Target)`, MinScore: 1}}, discardLogger())
	assert.Error(t, err, "non-boolean rules are rejected")
}

func TestThresholds_ZeroDefault(t *testing.T) {
	th, err := application.NewThresholds(0, nil, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, application.DefaultMinScore, th.For("anything", nil))
}
