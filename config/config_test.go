package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velodrop/courier-dispatch-system/pkg/configparser"
)

func TestTrafficDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, configparser.ParseEnv(cfg))

	// Grid granularity defaults to 200m cells at the Dakar operating latitude.
	assert.InDelta(t, 200, cfg.Traffic.CellSizeM, 0.001)
	assert.InDelta(t, 14.7167, cfg.Traffic.OperatingLat, 0.001)
	assert.Equal(t, "memory", cfg.Traffic.Store)
}
