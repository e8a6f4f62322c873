// Package manager coordinates the lifecycle of a PoC submission from
// checksum gate to recorded verdict.
//
// # Architecture
//
// The manager sits between the HTTP surface and the infrastructure
// packages and owns the ordering rules they must not know about:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                          Manager                            │
//	│                                                             │
//	│  Submit ──▶ checksum ──▶ dedup ──▶ blob ──▶ record ──▶ run  │
//	│  RunPocID ─────────────▶ missing-mode backfill ───────▶ run │
//	│  VerifyAgent ──────────▶ RunPocID per record, oldest first  │
//	│  Query ────────────────▶ record listing                     │
//	└──────┬──────────────┬──────────────┬──────────────┬─────────┘
//	       │              │              │              │
//	   storage.Store   blob.Store     PocRunner    events.Broker
//	   (records)       (bytes)        (containers) (observers)
//
// # Submission Flow
//
// A submission is identified by (agent_id, task_id, sha256(data)).
// The salted checksum is verified before anything is stored, so an
// agent cannot create records for a task it was not issued. The store's
// get-or-create is the arbiter for concurrent first submissions: both
// writers lay their bytes down, both then adopt whatever poc_id the
// store returns, and exactly one record exists afterwards.
//
// A duplicate whose mode already has an exit code is answered from the
// record and the saved output file without starting a container. A
// duplicate for the other mode reuses the record and runs just that
// mode.
//
// # Runs and Persistence
//
// Runs happen on a background context: once the bytes and the record
// exist, a client disconnect must not leave a half-verified record
// behind. The output file is written before the exit code, so any
// record with an exit code can serve its output. A failed run leaves
// the record without an exit code for that mode and the next
// submission or verification sweep retries it.
//
// # Error Contract
//
// Failures the caller caused (bad checksum) or that name a stored
// inconsistency carry an HTTP status via types.HTTPError and exact
// detail strings the agent tooling matches on. Infrastructure failures
// are returned as plain wrapped errors and the transport maps them to
// a generic 500.
//
// # See Also
//
//   - pkg/api: request parsing and response shaping around Submit
//   - pkg/runtime: the PocRunner implementation
//   - pkg/storage: record uniqueness and ordering guarantees
package manager
