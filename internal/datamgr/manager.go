// Package datamgr implements the per-sensor sliding-window running average
// and threshold alerting.
package datamgr

import (
	"log"
	"time"

	"github.com/fatih/color"

	"github.com/xtaci/sensorgw/internal/buffer"
	"github.com/xtaci/sensorgw/internal/gatewaycfg"
)

// Manager runs on one goroutine and owns the sensor directory exclusively.
type Manager struct {
	dir *Directory
}

// New creates a data manager with an empty directory.
func New() *Manager {
	return &Manager{dir: NewDirectory()}
}

// Directory exposes the sensor directory for tests and diagnostics.
func (m *Manager) Directory() *Directory {
	return m.dir
}

// Run consumes readings from buf until it is both empty and closed. On each
// wake it peeks (and marks processed) the buffer's tail without removing
// it, leaving removal to the storage manager. It sleeps
// DataManagerPollInterval whenever the tail is not unprocessed; since it
// re-checks on every wake it cannot miss a reading.
func (m *Manager) Run(buf *buffer.Buffer) {
	for {
		if buf.IsEmpty() && buf.IsClosed() {
			return
		}
		if !buf.HasUnprocessedTail() {
			time.Sleep(gatewaycfg.DataManagerPollInterval)
			continue
		}

		r, ok := buf.PeekTailAndMarkProcessed()
		if !ok {
			continue
		}
		m.process(r.ID, r.Value, r.Timestamp)
	}
}

// process applies one reading to its sensor's window and emits threshold
// alerts once the window has filled.
func (m *Manager) process(id uint16, value float64, ts int64) {
	st, created := m.dir.GetOrCreate(id)
	if created {
		log.Printf("new sensor node id %d", id)
	}

	st.Observe(value, ts)

	if st.Count() < gatewaycfg.WindowSize {
		return
	}

	mean := st.Mean()
	// Both conditions are checked independently; with sensible thresholds
	// they cannot fire together, but nothing here assumes that.
	if mean < gatewaycfg.LowThreshold {
		log.Println(color.CyanString(
			"LOW alert: sensor %d value=%.2f window-mean=%.2f (< %.2f)",
			id, value, mean, gatewaycfg.LowThreshold))
	}
	if mean > gatewaycfg.HighThreshold {
		log.Println(color.RedString(
			"HIGH alert: sensor %d value=%.2f window-mean=%.2f (> %.2f)",
			id, value, mean, gatewaycfg.HighThreshold))
	}
}
