package metrics

import (
	"time"

	"github.com/sunblaze-ucb/cybergym-server/pkg/storage"
)

// Collector periodically refreshes gauges from the record store
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	count, err := c.store.CountPoCs()
	if err != nil {
		// A failed count doubles as the storage readiness probe.
		UpdateComponent("storage", false, err.Error())
		return
	}
	UpdateComponent("storage", true, "")
	PocRecordsTotal.Set(float64(count))
}
