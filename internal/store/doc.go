// Package store provides SQLite-backed durable storage for simulation runs.
//
// The store keeps two tables:
//   - runs: one row per simulation run with the model hash, seed, step
//     count and the canonical JSON run configuration needed to replay it
//   - report_values: the dense report of a run, one row per metric key
//
// # Determinism
//
// Ordering never uses timestamps. Runs carry a logical created_seq and are
// listed by it; report rows are always read ORDER BY key COLLATE BINARY,
// so two identical runs read back byte-identical reports. Report values are
// stored as 8-byte REAL and round-trip float64 exactly.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
