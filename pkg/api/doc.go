// Package api exposes PoC submission and verification over HTTP.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                         mux.Router                           │
//	│   recovery ─▶ logging ─▶ metrics ─▶ (api key) ─▶ handler     │
//	└──────────────────────────────┬───────────────────────────────┘
//	                               │
//	                        manager.Manager
//
// # Endpoints
//
// Agent-facing:
//
//	POST /submit-vul        multipart: metadata (JSON) + file
//
// Operator, guarded by the API key header:
//
//	POST /submit-fix        same shape as /submit-vul
//	POST /query-poc         JSON filter {agent_id?, task_id?}
//	POST /verify-agent-pocs JSON {agent_id}
//
// Operational:
//
//	GET /health             process health (component registry)
//	GET /ready              critical-component readiness
//	GET /metrics            Prometheus exposition
//
// # Requests
//
// A submission carries its PoC as a multipart file plus a metadata
// field holding task_id, agent_id, the salted checksum and an optional
// require_flag. The file is size-checked before the metadata is parsed;
// an oversized upload is a 413, a malformed or incomplete metadata
// object is a 400.
//
// # Responses
//
// Success responses are plain JSON bodies. Every error is the envelope
//
//	{"detail": "<message>"}
//
// with the status carried by the HTTP code. Synthetic exit codes are
// shaped for agents in the handler: the code collapses to 0 and the
// recorded message replaces the program output, which also keeps the
// flag from being released for a timed-out run.
//
// # Authentication
//
// Operator endpoints compare the configured header (X-API-Key by
// default) in constant time. A missing or wrong key gets the same
// 404 "Not found" an unknown route gets, so probing cannot map the
// guarded surface.
//
// # See Also
//
//   - pkg/manager: the coordinator behind every endpoint
//   - pkg/client: the Go client for this API
package api
