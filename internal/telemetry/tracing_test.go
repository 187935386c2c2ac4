package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/toptracks/internal/config"
)

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Endpoint: "http://localhost:4318"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupCreatesProvider(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "url", endpoint: "http://192.0.2.1:4318"},
		{name: "host and port", endpoint: "192.0.2.1:4318"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			// Non-routable address; nothing is exported before shutdown.
			shutdown, err := Setup(context.Background(), config.TracingConfig{
				Enabled:     true,
				Endpoint:    tc.endpoint,
				ServiceName: "toptracks-test",
			})
			require.NoError(t, err)
			require.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestTracerStartsSpans(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "cache.get")
	span.End()
}
