// Package connmgr is the single owner of the sensor socket set: it admits
// connections, demarshals the wire record, detects per-connection
// idleness, and publishes readings into the shared buffer.
//
// Rather than a literal poll(2) loop over raw file descriptors, the manager
// is a fan-in reactor: one reader goroutine per accepted connection turns
// blocking I/O into events on a single channel, and exactly one goroutine —
// Run's caller — drains that channel and is the sole mutator of the
// connection set. I/O happens off that goroutine, but the connection set
// itself is only ever touched from one place.
package connmgr

import (
	"log"
	"net"
	"time"

	"github.com/xtaci/sensorgw/internal/buffer"
	"github.com/xtaci/sensorgw/internal/reading"
)

// entry tracks one accepted connection. The listening socket never appears
// here: it's a net.Listener, not a net.Conn, so Go's type system keeps it
// out of this set entirely and it can never be idle-evicted.
type entry struct {
	conn         net.Conn
	lastSeen     time.Time
	lastSensorID uint16
	announced    bool
}

type eventKind int

const (
	eventAccept eventKind = iota
	eventReading
	eventClosed
)

type event struct {
	kind    eventKind
	conn    net.Conn
	reading reading.Reading
}

// Manager is the connection manager. Construct with New; Run blocks the
// calling goroutine until global idleness or buffer closure.
type Manager struct {
	listener    net.Listener
	buf         *buffer.Buffer
	idleTimeout time.Duration
}

// New creates a connection manager that accepts on listener and publishes
// into buf. idleTimeout bounds both per-connection and whole-manager
// silence.
func New(listener net.Listener, buf *buffer.Buffer, idleTimeout time.Duration) *Manager {
	return &Manager{listener: listener, buf: buf, idleTimeout: idleTimeout}
}

// Run is the main loop. It returns when either:
//   - no socket has produced traffic for idleTimeout ("global idle"), or
//   - InsertFront reports the buffer is closed (the producer's exit signal).
//
// In both cases it closes every tracked client connection and the listener
// before returning.
func (m *Manager) Run() {
	events := make(chan event, 64)
	done := make(chan struct{})
	entries := make(map[net.Conn]*entry)

	go m.acceptLoop(events, done)

	idleTimer := time.NewTimer(m.idleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case <-idleTimer.C:
			log.Printf("connection manager: no data received in %s, shutting down", m.idleTimeout)
			close(done)
			m.closeAll(entries)
			return

		case ev := <-events:
			resetIdleTimer(idleTimer, m.idleTimeout)
			if m.handle(entries, ev) {
				close(done)
				m.closeAll(entries)
				return
			}

			// Drain whatever else is already queued so one wake processes a
			// full batch, mirroring poll(2) returning several ready fds at
			// once. Readings from a connection accepted earlier in the same
			// batch are handled in that batch too; they do not wait for the
			// next wake.
		drain:
			for {
				select {
				case ev2 := <-events:
					if m.handle(entries, ev2) {
						close(done)
						m.closeAll(entries)
						return
					}
				default:
					break drain
				}
			}

			m.sweepIdle(entries)
		}
	}
}

func resetIdleTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// handle applies one event to entries. It returns true when the loop must
// terminate (the buffer rejected an insert because it is closed).
func (m *Manager) handle(entries map[net.Conn]*entry, ev event) bool {
	switch ev.kind {
	case eventAccept:
		entries[ev.conn] = &entry{conn: ev.conn, lastSeen: time.Now()}

	case eventClosed:
		e, ok := entries[ev.conn]
		if !ok {
			return false
		}
		log.Printf("connection manager: sensor %d disconnected", e.lastSensorID)
		ev.conn.Close()
		delete(entries, ev.conn)

	case eventReading:
		e, ok := entries[ev.conn]
		if !ok {
			return false
		}
		e.lastSeen = time.Now()
		e.lastSensorID = ev.reading.ID
		if !e.announced {
			log.Printf("connection manager: new sensor announced, id=%d", ev.reading.ID)
			e.announced = true
		}
		if err := m.buf.InsertFront(ev.reading); err != nil {
			log.Printf("connection manager: %v, terminating", err)
			return true
		}
	}
	return false
}

// sweepIdle evicts client entries that have produced no traffic for
// idleTimeout. lastSeen is monotonic non-decreasing per entry, so this
// comparison is always well-founded.
func (m *Manager) sweepIdle(entries map[net.Conn]*entry) {
	now := time.Now()
	for conn, e := range entries {
		if now.Sub(e.lastSeen) > m.idleTimeout {
			log.Printf("connection manager: sensor %d idle-timed-out, evicting", e.lastSensorID)
			conn.Close()
			delete(entries, conn)
		}
	}
}

func (m *Manager) closeAll(entries map[net.Conn]*entry) {
	for conn := range entries {
		conn.Close()
	}
	m.listener.Close()
}

// acceptLoop admits new connections and starts a reader goroutine for each.
// It never touches entries directly; admission is applied by Run via an
// eventAccept event, preserving single-goroutine ownership of the set.
func (m *Manager) acceptLoop(events chan<- event, done <-chan struct{}) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-done:
				return
			default:
				log.Printf("connection manager: accept error: %v", err)
				return
			}
		}

		select {
		case events <- event{kind: eventAccept, conn: conn}:
		case <-done:
			conn.Close()
			return
		}
		go m.readLoop(conn, events, done)
	}
}

// readLoop demarshals fixed-size records from conn until it errors. Any
// decode failure, not just a clean close, is treated as the peer having
// gone away.
func (m *Manager) readLoop(conn net.Conn, events chan<- event, done <-chan struct{}) {
	for {
		r, err := reading.Decode(conn)
		if err != nil {
			select {
			case events <- event{kind: eventClosed, conn: conn}:
			case <-done:
			}
			return
		}

		select {
		case events <- event{kind: eventReading, conn: conn, reading: r}:
		case <-done:
			return
		}
	}
}
