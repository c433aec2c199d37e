// Package telemetry provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the task loop.
//
// The pieces are independent: the logger is used everywhere, the metrics
// collector and tracer are optional and wired into the run through a
// RunSink, which translates execution events into metric updates and spans.
package telemetry
