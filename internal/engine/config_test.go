package engine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, testConfig().Validate())
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "single site route",
			mutate: func(c *Config) { c.Route = []string{"mine"} },
			want:   "origin and a destination",
		},
		{
			name:   "empty site identifier",
			mutate: func(c *Config) { c.Route = []string{"mine", ""} },
			want:   "empty site identifier",
		},
		{
			name:   "duplicate site",
			mutate: func(c *Config) { c.Route = []string{"mine", "port", "mine"} },
			want:   "more than once",
		},
		{
			name:   "zero variance warning",
			mutate: func(c *Config) { c.Thresholds.VarianceWarnPct = 0 },
			want:   "variance thresholds must be positive",
		},
		{
			name: "critical variance below warning",
			mutate: func(c *Config) {
				c.Thresholds.VarianceWarnPct = 5
				c.Thresholds.VarianceCriticalPct = 2
			},
			want: "below warning threshold",
		},
		{
			name:   "staging tiers not increasing",
			mutate: func(c *Config) { c.Thresholds.StagingEscalated = c.Thresholds.StagingWarn },
			want:   "strictly increasing",
		},
		{
			name:   "stockpile warning out of range",
			mutate: func(c *Config) { c.Thresholds.StockpileWarnUtilisation = 1.2 },
			want:   "must be in (0,1)",
		},
		{
			name: "stockpile critical not above warning",
			mutate: func(c *Config) {
				c.Thresholds.StockpileCriticalUtilisation = c.Thresholds.StockpileWarnUtilisation
			},
			want: "above warning",
		},
		{
			name:   "compliance rate above one",
			mutate: func(c *Config) { c.Thresholds.ComplianceMinRate = 1.5 },
			want:   "compliance minimum rate",
		},
		{
			name:   "zero compliance window",
			mutate: func(c *Config) { c.Thresholds.ComplianceWindow = 0 },
			want:   "compliance window",
		},
		{
			name:   "zero shortfall window",
			mutate: func(c *Config) { c.Thresholds.ShortfallWindow = 0 },
			want:   "shortfall window",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Route = nil
	_, err := New(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine configuration")
}

func TestFinalSite(t *testing.T) {
	cfg := Config{Route: []string{"mine", "junction", "port"}}
	assert.Equal(t, "port", cfg.FinalSite())
}
