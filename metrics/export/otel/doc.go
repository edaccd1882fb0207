// Package otel binds goCounter client metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per client counter and a
// set of gauges per histogram (cumulative buckets, count and sum). A single
// callback reads [goCounter.Client.MetricsSnapshot] on each collection.
//
// The caller owns the MeterProvider.
package otel
