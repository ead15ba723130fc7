package datamgr

import "github.com/xtaci/sensorgw/internal/gatewaycfg"

// SensorState is the per-sensor running-average window. count is the total
// number of readings ever observed for this sensor; ring[count % WindowSize]
// is the slot the next reading will occupy. The mean is only meaningful
// once count >= WindowSize.
type SensorState struct {
	ID     uint16
	LastTS int64
	ring   [gatewaycfg.WindowSize]float64
	count  uint64
}

// Observe records value as the next reading for this sensor and advances
// last_ts.
func (s *SensorState) Observe(value float64, ts int64) {
	s.LastTS = ts
	s.ring[s.count%gatewaycfg.WindowSize] = value
	s.count++
}

// Count returns the total number of readings ever observed.
func (s *SensorState) Count() uint64 {
	return s.count
}

// Mean returns the arithmetic mean of the window. Only meaningful once
// Count() >= gatewaycfg.WindowSize; callers are expected to check that
// themselves.
func (s *SensorState) Mean() float64 {
	var sum float64
	for _, v := range s.ring {
		sum += v
	}
	return sum / float64(gatewaycfg.WindowSize)
}

// Directory is the unordered collection of SensorState keyed by sensor id.
// It is private to the data manager; no other goroutine touches it.
type Directory struct {
	states map[uint16]*SensorState
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{states: make(map[uint16]*SensorState)}
}

// GetOrCreate returns the existing state for id, or creates and registers a
// zero-initialised one. The second return value is true when a new state
// was created (the caller logs the "new sensor node id" announcement on
// that transition).
func (d *Directory) GetOrCreate(id uint16) (*SensorState, bool) {
	if st, ok := d.states[id]; ok {
		return st, false
	}
	st := &SensorState{ID: id}
	d.states[id] = st
	return st, true
}

// Len returns the number of distinct sensors tracked.
func (d *Directory) Len() int {
	return len(d.states)
}
