// Package adapter provides adapters for plcsim-starter integration with external systems.
package adapter

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer and meter of this module.
const InstrumentationName = "github.com/srediag/plcsim-starter"

// Telemetry is the tracer and meter handed to the state machine. Both come
// from the global providers, which are no-ops unless the embedding program
// installs real ones.
type Telemetry struct {
	Tracer trace.Tracer
	Meter  metric.Meter
}

// GlobalTelemetry returns the telemetry of the global providers.
func GlobalTelemetry() Telemetry {
	return Telemetry{
		Tracer: otel.Tracer(InstrumentationName),
		Meter:  otel.Meter(InstrumentationName),
	}
}
