package pipeline

import (
	"time"

	"github.com/whois-cat/ETL/pkg/models"
)

// KindStatus is what the last run of a kind did.
type KindStatus struct {
	Index     string    `json:"index"`
	Rows      int       `json:"rows"`
	Watermark time.Time `json:"watermark"`
	LastID    string    `json:"last_id,omitempty"`
	LastRunAt time.Time `json:"last_run_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Status is a snapshot of the coordinator for the status endpoint.
type Status struct {
	Running     bool                       `json:"running"`
	Cycles      int                        `json:"cycles"`
	LastCycleAt time.Time                  `json:"last_cycle_at"`
	LastError   string                     `json:"last_error,omitempty"`
	Kinds       map[models.Kind]KindStatus `json:"kinds"`
}

// Status returns a copy of the current status.
func (c *Coordinator) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()

	out := c.status
	out.Running = c.IsRunning()
	out.Kinds = make(map[models.Kind]KindStatus, len(c.status.Kinds))
	for k, v := range c.status.Kinds {
		out.Kinds[k] = v
	}
	return out
}

func (c *Coordinator) recordKind(r KindResult) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	ks := KindStatus{
		Index:     r.Index,
		Rows:      r.Rows,
		Watermark: r.Watermark.Modified,
		LastID:    r.Watermark.ID,
		LastRunAt: time.Now().UTC(),
	}
	if r.Err != nil {
		ks.LastError = r.Err.Error()
	}
	c.status.Kinds[r.Kind] = ks
}

func (c *Coordinator) recordCycle(at time.Time, err error) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	c.status.Cycles++
	c.status.LastCycleAt = at.UTC()
	c.status.LastError = ""
	if err != nil {
		c.status.LastError = err.Error()
	}
}
