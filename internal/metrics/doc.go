// Package metrics exposes Prometheus collectors for the request engine:
// request outcomes and latencies, and the occupancy of the task runtime.
package metrics
