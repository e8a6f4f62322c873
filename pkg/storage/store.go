package storage

import (
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// Store defines the interface for PoC record storage.
// This is implemented by BoltDB-backed storage.
type Store interface {
	// GetOrCreatePoC inserts rec unless a record with the same
	// (agent_id, task_id, poc_hash) already exists, and returns the
	// stored record either way. The returned record is the source of
	// truth: when a concurrent submission wins the insert, callers
	// receive the winner's record, poc_id included.
	GetOrCreatePoC(rec *types.PoCRecord) (*types.PoCRecord, error)

	// FindPoCs returns every record matching the uniqueness triple,
	// in insertion order. More than one result means the store's
	// invariant is broken.
	FindPoCs(agentID, taskID, pocHash string) ([]*types.PoCRecord, error)

	// ListPoCs returns records matching the query's set fields, in
	// insertion order. A nil query matches everything.
	ListPoCs(q *types.PocQuery) ([]*types.PoCRecord, error)

	// GetPoC returns the record for a PoC ID, or nil when absent.
	GetPoC(pocID string) (*types.PoCRecord, error)

	// SetExitCode records the result of a finished run for one mode
	// and returns the updated record.
	SetExitCode(pocID string, mode types.Mode, exitCode int) (*types.PoCRecord, error)

	// CountPoCs returns the number of stored records.
	CountPoCs() (int, error)

	// Close releases the underlying database.
	Close() error
}
