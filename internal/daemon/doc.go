// Package daemon coordinates the long-running artstudio process.
//
// It wires configuration, the session store, and the studio into a single
// lifecycle with flock-based locking to prevent multiple instances. On start
// it marks sessions left mid-job by a previous process as failed, records
// dependency health, and serves the browser UI plus the JSON API that drives
// capture, extraction, generation, refinement and export.
//
// Long-running work (extraction, generation, refinement) is started by the
// API and runs inside the studio; handlers return 202 and clients poll the
// session for progress. A background loop prunes expired sessions and
// orphaned media while the daemon runs.
package daemon
