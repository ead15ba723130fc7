// Package orchestrator wires the shared buffer, the connection manager, and
// the two consumer workers together and drives the startup and shutdown
// sequence for one gateway run.
package orchestrator

import (
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtaci/sensorgw/internal/buffer"
	"github.com/xtaci/sensorgw/internal/connmgr"
	"github.com/xtaci/sensorgw/internal/datamgr"
	"github.com/xtaci/sensorgw/internal/gatewaycfg"
	"github.com/xtaci/sensorgw/internal/storagemgr"
)

// Orchestrator owns the buffer for the lifetime of one run.
type Orchestrator struct {
	buf        *buffer.Buffer
	connMgr    *connmgr.Manager
	dataMgr    *datamgr.Manager
	storageMgr *storagemgr.Manager
}

// New creates an orchestrator that will listen on listener and persist
// through storage. idleTimeout is passed through to the connection
// manager.
func New(listener net.Listener, storage *storagemgr.Manager, idleTimeout time.Duration) *Orchestrator {
	buf := buffer.New()
	return &Orchestrator{
		buf:        buf,
		connMgr:    connmgr.New(listener, buf, idleTimeout),
		dataMgr:    datamgr.New(),
		storageMgr: storage,
	}
}

// Run spawns the data and storage workers, runs the connection manager on
// its own goroutine, then drains, closes, and joins. It returns the first
// error reported by a worker, if any — including ErrConnectionLost, should
// the storage manager give up.
func (o *Orchestrator) Run() error {
	var g errgroup.Group

	g.Go(func() error {
		o.dataMgr.Run(o.buf)
		return nil
	})

	storageErr := make(chan error, 1)
	g.Go(func() error {
		err := o.storageMgr.Run(o.buf)
		storageErr <- err
		return err
	})

	connDone := make(chan struct{})
	go func() {
		o.connMgr.Run()
		close(connDone)
	}()

	// storageGone tracks whether the storage manager has already exited
	// (e.g. after exhausting its retries) and so will never again call
	// RemoveTail. Detecting this here, rather than only relying on the
	// buffer draining on its own, is what keeps shutdown from wedging when
	// storage dies out from under the other two workers.
	storageGone := false

	select {
	case <-connDone:
		// Connection manager shut down on its own (global idle, or the
		// buffer was already closed by another path).
	case <-storageErr:
		// Storage gave up before the connection manager did. Close the
		// buffer immediately so the connection manager's next insert
		// fails and it shuts down too, instead of waiting for it to go
		// idle on its own.
		storageGone = true
		o.buf.Close()
	}
	<-connDone

	// Drain whatever is still queued. While the storage manager is still
	// alive this just waits for it to catch up; once it has given up,
	// nothing will ever remove a tail again, so queued readings are
	// discarded directly instead of waiting forever for a consumer that
	// no longer exists.
	for !o.buf.IsEmpty() {
		if storageGone {
			o.buf.RemoveTail()
			continue
		}
		select {
		case <-storageErr:
			storageGone = true
		default:
			log.Println("orchestrator: draining buffer before shutdown")
			time.Sleep(gatewaycfg.DrainPollInterval)
		}
	}
	o.buf.Close()

	return g.Wait()
}
