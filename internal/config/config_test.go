package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TOPICBROKER_LOG_LEVEL",
		"TOPICBROKER_DATABASE_PATH",
		"TOPICBROKER_METRICS_ADDR",
		"TOPICBROKER_MDNS_ENABLED",
		"TOPICBROKER_UDP_RATE",
		"TOPICBROKER_UDP_BURST",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "data/topicbroker.db", cfg.DatabasePath)
	require.Equal(t, true, cfg.MDNSEnabled)
	require.Equal(t, float64(200), cfg.UDPRatePerSecond)
}

func TestLoadReadsOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("TOPICBROKER_LOG_LEVEL", "debug")
	defer os.Unsetenv("TOPICBROKER_LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Config{Port: 0, LogLevel: "info", UDPRatePerSecond: 1, UDPRateBurst: 1}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Config{Port: 1, LogLevel: "verbose", UDPRatePerSecond: 1, UDPRateBurst: 1}
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	cfg := Config{Port: 9000, LogLevel: "warn", UDPRatePerSecond: 50, UDPRateBurst: 100}
	require.NoError(t, cfg.Validate())
}
