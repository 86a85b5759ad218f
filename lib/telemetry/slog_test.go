package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in  string
		out slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, c := range cases {
		require.Equal(t, c.out, ParseLevel(c.in), c.in)
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "user", "Bruce")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "user=Bruce")
}

func TestZeroTelemetryShutdown(t *testing.T) {
	require.NoError(t, Telemetry{}.Shutdown(context.Background()))
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		endpoint string
		kind     transport
		url      string
		err      bool
	}{
		{endpoint: "grpc://localhost:4317", kind: transportGrpc, url: "http://localhost:4317"},
		{endpoint: "grpcs://otel.example.com", kind: transportGrpc, url: "https://otel.example.com"},
		{endpoint: "https://otel.example.com/v1/traces", kind: transportHttp, url: "https://otel.example.com/v1/traces"},
		{endpoint: "udp://localhost:4317", err: true},
	}

	for _, test := range cases {
		kind, url, err := parseEndpoint(test.endpoint)
		if test.err {
			require.Error(t, err, test.endpoint)
			continue
		}
		require.NoError(t, err, test.endpoint)
		require.Equal(t, test.kind, kind)
		require.Equal(t, test.url, url)
	}
}

func TestSetupWithoutEndpoints(t *testing.T) {
	tel, err := Setup(context.Background(), "runharvest-test", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
}

func TestIsBrowserProcess(t *testing.T) {
	require.True(t, isBrowserProcess("chrome"))
	require.True(t, isBrowserProcess("Google Chrome Helper (Renderer)"))
	require.True(t, isBrowserProcess("chromium-browser"))
	require.False(t, isBrowserProcess("runharvest"))
}
