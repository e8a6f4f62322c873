/*
Package reconciler converges stored PoC records toward fully verified.

A record normally gets its exit codes filled in by the submission that
created it, or by an operator calling verify-agent-pocs. Both paths can
be interrupted: the server may be restarted mid-run, a container run may
fail transiently, a submission may error after the record was written.
The sweeper closes that gap by periodically re-driving incomplete
records through the coordinator.

# Architecture

	┌─────────────────────────────────────────────┐
	│               Sweep Loop                    │
	│         (every sweep_interval)              │
	└──────────────────┬──────────────────────────┘
	                   │ ListPoCs (all records)
	                   ▼
	        ┌─────────────────────┐    skip: complete, or
	        │  needsRun(record)?  │──▶ fix-less task with vul
	        └──────────┬──────────┘    code set, or PoC bytes gone
	                   │ yes
	                   ▼
	        Verifier.RunPocID(id, rerun=false)
	                   │
	                   ▼
	        missing modes run, exit codes persisted

The loop is stateless and level-triggered: every pass re-reads the
store and acts only on what is currently incomplete, so missed or
overlapping failures converge within one interval. Failures are logged
and left for the next pass rather than retried in-line.

# Usage

	sweeper := reconciler.New(&reconciler.Config{
		Store:    store,
		Blobs:    blobs,
		Verifier: mgr,
		Interval: 5 * time.Minute,
	})
	sweeper.Start()
	defer sweeper.Stop()

Stop waits for the loop to exit; a container run already in flight
completes before the sweeper returns. The serve command only starts a
sweeper when sweep_interval is set, keeping the default behavior purely
request-driven.
*/
package reconciler
