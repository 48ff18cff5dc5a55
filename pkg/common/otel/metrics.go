package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// GetMeterProvider returns the globally registered meter provider. It is a
// reader-less provider until InitTelemetry installs an exporting one.
func GetMeterProvider() metric.MeterProvider { return otel.GetMeterProvider() }
