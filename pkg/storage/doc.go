/*
Package storage provides persistent PoC record storage using BoltDB.

The storage package is the system of record for accepted submissions.
It persists one PoCRecord per unique (agent_id, task_id, poc_hash)
triple and arbitrates that uniqueness under concurrency. PoC bytes and
run output live in pkg/blob; only metadata lives here.

# Architecture

	┌───────────────────── STORAGE LAYER ─────────────────────┐
	│                                                         │
	│  ┌───────────────────────────────────────────┐          │
	│  │          Store Interface                  │          │
	│  │  GetOrCreatePoC / FindPoCs / ListPoCs     │          │
	│  │  GetPoC / SetExitCode / CountPoCs         │          │
	│  └──────────────────┬────────────────────────┘          │
	│                     │                                   │
	│  ┌──────────────────▼────────────────────────┐          │
	│  │          BoltStore (bbolt)                │          │
	│  │                                           │          │
	│  │  bucket "pocs":                           │          │
	│  │    poc_id → JSON PoCRecord                │          │
	│  │                                           │          │
	│  │  bucket "poc_index":                      │          │
	│  │    agent\0task\0hash → poc_id             │          │
	│  │                                           │          │
	│  │  single file, single writer, ACID         │          │
	│  └───────────────────────────────────────────┘          │
	└─────────────────────────────────────────────────────────┘

# Uniqueness

The poc_index bucket is the arbiter. GetOrCreatePoC looks the triple up
and inserts inside one write transaction; Bolt serializes writers, so
exactly one of any set of concurrent first submissions inserts, and
every other caller gets the winner's record back — including the
winner's poc_id. Callers must treat the returned record, not their
candidate, as truth.

# Ordering

Records carry a Seq assigned from the pocs bucket sequence at insert.
FindPoCs and ListPoCs sort by it, so results come back in insertion
order regardless of poc_id key order. Agent-wide verification depends
on this.

# Usage

	store, err := storage.NewBoltStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.GetOrCreatePoC(&types.PoCRecord{
		PocID:   pocID,
		AgentID: agentID,
		TaskID:  taskID,
		PocHash: hash,
	})
	// rec.PocID may differ from pocID if the triple already existed.

	rec, err = store.SetExitCode(rec.PocID, types.ModeVul, exitCode)

# Performance Characteristics

Lookups by poc_id are direct bucket gets. FindPoCs and ListPoCs scan
the pocs bucket; submission volume for a benchmark run is thousands of
records, so scans stay cheap and no secondary indexes beyond the
uniqueness index are kept.

# See Also

  - pkg/blob: artifact bytes addressed by poc_id
  - pkg/manager: the only writer of records
*/
package storage
