package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

var (
	// Bucket names
	bucketPocs = []byte("pocs")
	// bucketPocIndex maps agent_id\x00task_id\x00poc_hash to poc_id and
	// is the uniqueness arbiter for the triple.
	bucketPocIndex = []byte("poc_index")
)

// BoltStore implements Store using BoltDB. Bolt serializes writers, so
// every uniqueness decision happens inside a single update transaction.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database at dbPath.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketPocs,
			bucketPocIndex,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func indexKey(agentID, taskID, pocHash string) []byte {
	return []byte(agentID + "\x00" + taskID + "\x00" + pocHash)
}

// GetOrCreatePoC inserts rec or returns the existing record for its
// triple. Seq and timestamps are assigned here on insert.
func (s *BoltStore) GetOrCreatePoC(rec *types.PoCRecord) (*types.PoCRecord, error) {
	var result *types.PoCRecord

	err := s.db.Update(func(tx *bolt.Tx) error {
		pocs := tx.Bucket(bucketPocs)
		index := tx.Bucket(bucketPocIndex)

		key := indexKey(rec.AgentID, rec.TaskID, rec.PocHash)
		if existingID := index.Get(key); existingID != nil {
			data := pocs.Get(existingID)
			if data == nil {
				return fmt.Errorf("index entry points at missing poc %s", existingID)
			}
			var existing types.PoCRecord
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("failed to unmarshal poc record: %w", err)
			}
			result = &existing
			return nil
		}

		seq, err := pocs.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		now := time.Now().UTC()
		stored := *rec
		stored.Seq = seq
		stored.CreatedAt = now
		stored.UpdatedAt = now

		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("failed to marshal poc record: %w", err)
		}
		if err := pocs.Put([]byte(stored.PocID), data); err != nil {
			return fmt.Errorf("failed to store poc record: %w", err)
		}
		if err := index.Put(key, []byte(stored.PocID)); err != nil {
			return fmt.Errorf("failed to index poc record: %w", err)
		}

		result = &stored
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindPoCs scans for records matching the full triple.
func (s *BoltStore) FindPoCs(agentID, taskID, pocHash string) ([]*types.PoCRecord, error) {
	records := []*types.PoCRecord{}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPocs)
		return b.ForEach(func(k, v []byte) error {
			var rec types.PoCRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal poc record: %w", err)
			}
			if rec.AgentID == agentID && rec.TaskID == taskID && rec.PocHash == pocHash {
				records = append(records, &rec)
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}
	sortBySeq(records)
	return records, nil
}

// ListPoCs scans for records matching the query's set fields.
func (s *BoltStore) ListPoCs(q *types.PocQuery) ([]*types.PoCRecord, error) {
	records := []*types.PoCRecord{}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPocs)
		return b.ForEach(func(k, v []byte) error {
			var rec types.PoCRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal poc record: %w", err)
			}
			if q != nil {
				if q.AgentID != "" && rec.AgentID != q.AgentID {
					return nil
				}
				if q.TaskID != "" && rec.TaskID != q.TaskID {
					return nil
				}
			}
			records = append(records, &rec)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}
	sortBySeq(records)
	return records, nil
}

// GetPoC returns the record for pocID, or nil when absent.
func (s *BoltStore) GetPoC(pocID string) (*types.PoCRecord, error) {
	var result *types.PoCRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPocs).Get([]byte(pocID))
		if data == nil {
			return nil
		}
		var rec types.PoCRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal poc record: %w", err)
		}
		result = &rec
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetExitCode records the outcome of a run for one mode.
func (s *BoltStore) SetExitCode(pocID string, mode types.Mode, exitCode int) (*types.PoCRecord, error) {
	var result *types.PoCRecord

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPocs)
		data := b.Get([]byte(pocID))
		if data == nil {
			return fmt.Errorf("poc record not found: %s", pocID)
		}

		var rec types.PoCRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal poc record: %w", err)
		}

		code := exitCode
		if mode == types.ModeFix {
			rec.FixExitCode = &code
		} else {
			rec.VulExitCode = &code
		}
		rec.UpdatedAt = time.Now().UTC()

		updated, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal poc record: %w", err)
		}
		if err := b.Put([]byte(pocID), updated); err != nil {
			return fmt.Errorf("failed to store poc record: %w", err)
		}

		result = &rec
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// CountPoCs returns the number of stored records.
func (s *BoltStore) CountPoCs() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketPocs).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func sortBySeq(records []*types.PoCRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})
}
