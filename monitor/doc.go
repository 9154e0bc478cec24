// Package monitor records cache hit/miss counts and operation latencies.
//
// Every measurement is filed under a Key made of the current mode and a
// label. Switching mode between query rounds isolates their telemetry without
// clearing earlier rounds. Keys render as "mode::label" at the boundary.
package monitor
