package telemetry

import (
	"context"
	"testing"

	"github.com/squadworks/squad/internal/config"
)

func TestInit_Disabled(t *testing.T) {
	for _, cfg := range []config.TelemetryConfig{
		{Enabled: false, OTLPEndpoint: "localhost:4317"},
		{Enabled: true, OTLPEndpoint: ""},
	} {
		shutdown, err := Init(context.Background(), cfg, "test")
		if err != nil {
			t.Fatalf("Init(%+v): %v", cfg, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}
}
