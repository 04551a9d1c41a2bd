// Package infra contains technical adapters: checkpoint and sample files,
// history stores, metrics exporters, the MQTT publisher, Sentry and process
// CPU statistics. These
// packages should depend only on the interfaces defined in the core
// packages.
package infra
