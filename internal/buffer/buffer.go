// Package buffer implements the shared FIFO hand-off between the connection
// manager (sole producer) and the data/storage managers (two consumers with
// an asymmetric peek-then-remove protocol).
//
// A node's lifecycle is unprocessed -> processed -> removed, and no other
// transition is legal. The data manager moves a node from unprocessed to
// processed via PeekTailAndMarkProcessed without unlinking it; the storage
// manager unlinks it via RemoveTail only once it has seen the processed
// flag. This guarantees a reading cannot be stored before analytics has
// touched it.
package buffer

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/xtaci/sensorgw/internal/reading"
)

// ErrClosed is returned by InsertFront once the buffer has been closed.
var ErrClosed = errors.New("buffer: closed")

// node is a doubly-linkable FIFO cell. prev points toward the tail (older
// entries), next points toward the head (newer entries); traversing prev
// from head always reaches tail.
type node struct {
	reading   reading.Reading
	processed bool
	prev      *node
	next      *node
}

// Buffer is the shared, closable FIFO hand-off. The zero value is not
// usable; construct with New.
type Buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	head   *node // most recently inserted
	tail   *node // oldest
	closed bool
}

// New creates an empty, open buffer.
func New() *Buffer {
	b := &Buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// InsertFront prepends r as a new unprocessed node. It fails with ErrClosed
// if the buffer has already been closed; at most one producer is expected
// to call this.
func (b *Buffer) InsertFront(r reading.Reading) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	r.Processed = false
	n := &node{reading: r}
	n.prev = b.head
	if b.head != nil {
		b.head.next = n
	}
	b.head = n
	if b.tail == nil {
		b.tail = n
	}
	b.cond.Broadcast()
	return nil
}

// PeekTailAndMarkProcessed marks the tail node processed (idempotent if it
// already was) and returns a copy of its reading, including the now-true
// Processed flag. It returns false if the buffer is empty. Signals the
// condition variable so a waiting storage manager can make progress.
func (b *Buffer) PeekTailAndMarkProcessed() (reading.Reading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tail == nil {
		return reading.Reading{}, false
	}

	b.tail.processed = true
	b.cond.Broadcast()
	r := b.tail.reading
	r.Processed = true
	return r, true
}

// RemoveTail unlinks and returns the tail. The caller must ensure the
// buffer is non-empty; calling it on an empty buffer is a programming
// error and panics.
func (b *Buffer) RemoveTail() reading.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tail == nil {
		panic("buffer: RemoveTail called on empty buffer")
	}

	old := b.tail
	b.tail = old.prev
	if b.tail == nil {
		b.head = nil
	} else {
		b.tail.next = nil
	}
	b.cond.Broadcast()
	return old.reading
}

// IsEmpty reports whether the buffer currently holds no nodes.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail == nil
}

// IsClosed reports whether Close has been called.
func (b *Buffer) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// HasUnprocessedTail reports whether the buffer is non-empty and its tail
// has not yet been marked processed.
func (b *Buffer) HasUnprocessedTail() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail != nil && !b.tail.processed
}

// HasProcessedTail reports whether the buffer is non-empty and its tail has
// been marked processed.
func (b *Buffer) HasProcessedTail() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail != nil && b.tail.processed
}

// Close marks the buffer closed. closed is monotonic: once true, later
// calls are no-ops (two consecutive closes are equivalent to one). Wakes
// any goroutine blocked in WaitUntilProcessedOrClosed.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// WaitUntilProcessedOrClosed blocks until the tail is processed or the
// buffer is empty and closed, whichever comes first. It is the storage
// manager's consumption wait: condition-variable based, so it cannot miss
// a signal sent while it wasn't yet waiting, and it is always paired with
// Close's broadcast to guarantee shutdown progress. The boolean return is
// true when there is a processed tail to remove, and false when the
// buffer is drained and closed.
func (b *Buffer) WaitUntilProcessedOrClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.tail != nil && b.tail.processed {
			return true
		}
		if b.tail == nil && b.closed {
			return false
		}
		b.cond.Wait()
	}
}
