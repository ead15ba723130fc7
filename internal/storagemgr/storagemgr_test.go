package storagemgr

import (
	"testing"
	"time"

	"github.com/xtaci/sensorgw/internal/buffer"
	"github.com/xtaci/sensorgw/internal/gatewaycfg"
	"github.com/xtaci/sensorgw/internal/reading"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(gatewaycfg.DBDriverName, ":memory:", true)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRunPersistsInFIFOOrder(t *testing.T) {
	m := openTestManager(t)
	buf := buffer.New()

	done := make(chan error, 1)
	go func() { done <- m.Run(buf) }()

	// Only the tail can be marked processed, so stand in for the data
	// manager one reading at a time: insert, mark, and wait for Run to
	// remove it before inserting the next.
	values := []float64{15.0, 15.5, 16.0}
	for i, v := range values {
		if err := buf.InsertFront(reading.Reading{ID: 1, Value: v, Timestamp: int64(2000 + i)}); err != nil {
			t.Fatalf("InsertFront: %v", err)
		}
		if _, ok := buf.PeekTailAndMarkProcessed(); !ok {
			t.Fatalf("expected a tail to mark processed")
		}
		deadline := time.Now().Add(time.Second)
		for !buf.IsEmpty() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	buf.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return")
	}

	rows, err := m.db.Query("SELECT sensor_value FROM " + gatewaycfg.TableName + " ORDER BY id")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	var got []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		got = append(got, v)
	}
	if len(got) != len(values) {
		t.Fatalf("stored %d rows, want %d", len(got), len(values))
	}
	for i, v := range values {
		if got[i] != v {
			t.Fatalf("row %d = %v, want %v (storage order must match insertion order)", i, got[i], v)
		}
	}
}

func TestRunReturnsNilOnEmptyClosedBuffer(t *testing.T) {
	m := openTestManager(t)
	buf := buffer.New()
	buf.Close()

	if err := m.Run(buf); err != nil {
		t.Fatalf("Run returned %v, want nil for an already drained buffer", err)
	}
}

func TestRunReturnsConnectionLostAfterRetriesExhausted(t *testing.T) {
	m := openTestManager(t)
	buf := buffer.New()
	if err := buf.InsertFront(reading.Reading{ID: 1, Value: 1.0, Timestamp: 1}); err != nil {
		t.Fatalf("InsertFront: %v", err)
	}
	buf.PeekTailAndMarkProcessed()
	buf.Close()

	// Force every insert attempt to fail: close the prepared statement out
	// from under Run so insertWithRetry exhausts its attempts.
	m.insertStmt.Close()

	if err := m.Run(buf); err != ErrConnectionLost {
		t.Fatalf("Run = %v, want ErrConnectionLost", err)
	}
}
