// Package internaldefs holds the metric names, help strings and bucket
// boundaries shared by the exporters, so that Prometheus and OpenTelemetry
// expose identical series for the same client.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
