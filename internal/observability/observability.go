// Package observability provides structured logging and Prometheus metrics
// for dtrack-upload.
//
// A run is short-lived, so metrics are not scraped. They are exported once at
// the end of the run, either to a node-exporter textfile or to a Pushgateway.
package observability
