package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanytics/urbanytics/internal/config"
)

func TestBuildRules_Defaults(t *testing.T) {
	cfg = &config.Config{}

	rules, err := buildRules()
	require.NoError(t, err)
	assert.Equal(t, 2000, rules.MinListYear)
	assert.Equal(t, 2020, rules.MaxListYear)
	assert.Contains(t, rules.RejectedTowns, "***Unknown***")
}

func TestBuildRules_ConfigOverrides(t *testing.T) {
	cfg = &config.Config{Clean: config.CleanConfig{
		MaxYearsUntilSold: 15,
		RatioFloor:        0.2,
	}}

	rules, err := buildRules()
	require.NoError(t, err)
	assert.Equal(t, 15, rules.MaxYearsUntilSold)
	assert.InDelta(t, 0.2, rules.RatioFloor, 1e-9)
	// Untouched bounds keep their defaults.
	assert.Equal(t, 2000, rules.MinListYear)
}

func TestBuildRules_MissingRulesFile(t *testing.T) {
	cfg = &config.Config{}
	loadRules = "/nonexistent/rules.yaml"
	t.Cleanup(func() { loadRules = "" })

	_, err := buildRules()
	assert.Error(t, err)
}
