package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, validateConfig(&cfg))
}

func TestValidateConfigRejectsUnknownNetwork(t *testing.T) {
	cfg := defaultConfig()
	cfg.Network = "kovan"
	require.Error(t, validateConfig(&cfg))
}

func TestValidateConfigRejectsOutOfRangeDebugLevel(t *testing.T) {
	cfg := defaultConfig()
	cfg.DebugLevel = 9
	require.Error(t, validateConfig(&cfg))

	cfg.DebugLevel = -1
	require.Error(t, validateConfig(&cfg))
}

func TestValidateConfigRejectsEmptyRPCHost(t *testing.T) {
	cfg := defaultConfig()
	cfg.RPC.Host = ""
	require.Error(t, validateConfig(&cfg))
}

func TestDebugLevelToString(t *testing.T) {
	require.Equal(t, "off", debugLevelToString(0))
	require.Equal(t, "trace", debugLevelToString(5))
	require.Equal(t, "trace", debugLevelToString(99))
}
