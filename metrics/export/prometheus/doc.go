// Package prometheus exposes a goCounter client's metrics as a
// client_golang Collector.
//
// The collector reads a snapshot on every scrape; nothing is cached. A client
// built with metrics disabled yields no series.
package prometheus
