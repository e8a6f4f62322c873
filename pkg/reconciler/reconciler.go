package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sunblaze-ucb/cybergym-server/pkg/blob"
	"github.com/sunblaze-ucb/cybergym-server/pkg/log"
	"github.com/sunblaze-ucb/cybergym-server/pkg/metrics"
	"github.com/sunblaze-ucb/cybergym-server/pkg/storage"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// Verifier executes the unverified modes of one stored PoC.
// *manager.Manager satisfies it.
type Verifier interface {
	RunPocID(ctx context.Context, pocID string, rerun bool) error
}

// Sweeper periodically finishes interrupted verifications: records left
// without an exit code (a crashed server, a run that errored) are
// re-driven through the coordinator until every mode that can run has.
type Sweeper struct {
	store    storage.Store
	blobs    *blob.Store
	verifier Verifier
	interval time.Duration
	logger   zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config holds the collaborators for creating a Sweeper.
type Config struct {
	Store    storage.Store
	Blobs    *blob.Store
	Verifier Verifier
	Interval time.Duration
}

// New creates a sweeper. It does nothing until Start is called.
func New(cfg *Config) *Sweeper {
	return &Sweeper{
		store:    cfg.Store,
		blobs:    cfg.Blobs,
		verifier: cfg.Verifier,
		interval: cfg.Interval,
		logger:   log.WithComponent("sweeper"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop halts the loop and waits for an in-flight sweep to stop between
// records. A run already handed to the verifier finishes first.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// sweep performs one pass over all records.
func (s *Sweeper) sweep(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.SweepDuration)
		metrics.SweepsTotal.Inc()
	}()

	records, err := s.store.ListPoCs(nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list PoC records")
		return
	}

	var completed, failed int
	for _, record := range records {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if !s.needsRun(record) {
			continue
		}
		if err := s.verifier.RunPocID(ctx, record.PocID, false); err != nil {
			failed++
			s.logger.Warn().Err(err).
				Str("poc_id", record.PocID).
				Str("task_id", record.TaskID).
				Msg("Sweep run failed, leaving for next pass")
			continue
		}
		completed++
	}

	if completed > 0 || failed > 0 {
		s.logger.Info().
			Int("completed", completed).
			Int("failed", failed).
			Msg("Verification sweep finished")
	}
}

// needsRun reports whether a record still has an exit code its task can
// produce. Records whose PoC bytes are gone are skipped rather than
// driven into a guaranteed failure every pass.
func (s *Sweeper) needsRun(record *types.PoCRecord) bool {
	if !s.blobs.HasPoC(record.PocID) {
		return false
	}
	if record.VulExitCode == nil {
		return true
	}
	return record.FixExitCode == nil && task.HasFixBuild(record.TaskID)
}
