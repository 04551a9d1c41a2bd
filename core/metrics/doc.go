// Package metrics defines the sinks that record training progress. Sinks
// like PromSink and InfluxSink in infra/metrics record per-epoch losses and
// evaluation reports and can be combined with NewMultiSink. The factory
// helpers return a MultiSink automatically when multiple sinks are
// configured.
package metrics
