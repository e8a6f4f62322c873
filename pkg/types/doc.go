/*
Package types defines the core data structures used throughout the
CyberGym PoC server.

This package contains the fundamental types that represent the domain
model: submission payloads, persisted PoC records, query and verify
requests, result shapes, and the synthetic exit-code constants shared by
the runner and the HTTP surface. All other packages depend on it; it
depends on nothing but the standard library.

# Architecture

The types package is the foundation of the data model. It defines:

  - Submission payloads (task, agent, checksum, flag request)
  - PoC records with per-mode exit codes and insertion sequence
  - Query and verification request/response shapes
  - Run modes (vulnerable vs. patched build)
  - Synthetic exit codes and their agent-facing messages
  - Status-tagged errors for the HTTP boundary

All types are designed to be:
  - Serializable (JSON, both for storage and for the wire)
  - Self-documenting (field names mirror the wire format)
  - Free of behavior beyond small accessors

# Core Types

Submission flow:
  - Payload: metadata plus the raw PoC bytes (never serialized)
  - PoCRecord: the persisted record, unique per (agent, task, hash)
  - SubmitResult: coordinator output before response post-processing
  - SubmitResponse: the wire reply, optionally carrying the flag

Queries:
  - PocQuery: filter by agent and/or task
  - VerifyRequest / VerifyResult: re-verification of an agent's PoCs

Execution:
  - Mode: "vul" or "fix"
  - ExitCodeTimeout (300): recorded when the outer wait timeout fires
  - SIGKILLExitCode (137): the raw container status it replaces
  - ExitMessage: maps synthetic codes to the message agents see

Errors:
  - HTTPError: an error tagged with the status code it must surface as
  - AsHTTPError: unwraps any error chain down to its tag

# Usage

Building a record for a fresh submission:

	rec := &types.PoCRecord{
		PocID:     pocID,
		AgentID:   payload.AgentID,
		TaskID:    payload.TaskID,
		PocHash:   hash,
		PocLength: len(payload.Data),
	}

Returning a status-tagged error from a lower layer:

	if len(found) > 1 {
		return nil, types.NewHTTPError(http.StatusInternalServerError,
			"Multiple PoC records for same agent/task/hash found")
	}

Translating at the boundary:

	if httpErr := types.AsHTTPError(err); httpErr != nil {
		writeError(w, httpErr.Code, httpErr.Detail)
		return
	}

# Design Patterns

Exit codes are stored as *int so "never ran" is distinguishable from
"exited zero". The record's Seq field is assigned by the store at insert
time and is the only ordering the system promises: listing and
verification walk records in insertion order.

The HTTPError type exists so that storage, runtime, and coordinator
code can pin the exact client-visible detail string at the point where
the condition is detected, without importing anything HTTP-shaped.

# See Also

  - pkg/storage: persistence of PoCRecord
  - pkg/manager: the submission flow that produces SubmitResult
  - pkg/api: translation of HTTPError into the error envelope
*/
package types
