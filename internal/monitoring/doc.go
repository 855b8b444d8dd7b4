// Package monitoring provides Prometheus metrics for sandbox
// executions.
//
// Collectors are registered against an explicit Registerer so tests and
// multi-runtime hosts can use isolated registries. All Metrics methods
// accept a nil receiver, letting callers treat metrics as strictly
// optional wiring.
package monitoring
