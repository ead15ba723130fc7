// Package storagemgr is the durable sink: it opens one database/sql
// connection at startup, owns it exclusively, and inserts every reading
// the data manager has already touched.
package storagemgr

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/xtaci/sensorgw/internal/buffer"
	"github.com/xtaci/sensorgw/internal/gatewaycfg"
	"github.com/xtaci/sensorgw/internal/reading"
)

// ErrConnectionLost is returned by Run when the insert retries are
// exhausted and the worker gives up on its connection.
var ErrConnectionLost = errors.New("storagemgr: database connection lost")

// Manager owns the one database/sql connection the storage manager is
// allowed to touch.
type Manager struct {
	db         *sql.DB
	insertStmt *sql.Stmt
}

// Open connects to the durable store, and either drops-and-recreates or
// create-if-not-exists the table depending on clearUp.
func Open(driverName, dataSourceName string, clearUp bool) (*Manager, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "storagemgr: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storagemgr: ping")
	}

	if clearUp {
		if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", gatewaycfg.TableName)); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "storagemgr: drop table")
		}
	}

	createStmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sensor_id INTEGER NOT NULL,
		sensor_value DECIMAL(4,2) NOT NULL,
		timestamp TIMESTAMP NOT NULL
	)`, gatewaycfg.TableName)
	if _, err := db.Exec(createStmt); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storagemgr: create table")
	}

	insertStmt, err := db.Prepare(fmt.Sprintf(
		"INSERT INTO %s (sensor_id, sensor_value, timestamp) VALUES (?, ?, ?)", gatewaycfg.TableName))
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storagemgr: prepare insert")
	}

	return &Manager{db: db, insertStmt: insertStmt}, nil
}

// DB exposes the underlying connection for diagnostics and tests; the
// storage manager itself is still the only goroutine that writes through
// it.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close releases the prepared statement and the underlying connection.
func (m *Manager) Close() error {
	if m.insertStmt != nil {
		m.insertStmt.Close()
	}
	return m.db.Close()
}

// Run waits for processed readings and persists them until the buffer
// drains and closes, or the connection is lost.
func (m *Manager) Run(buf *buffer.Buffer) error {
	for {
		hasProcessed := buf.WaitUntilProcessedOrClosed()
		if !hasProcessed {
			return nil
		}

		r := buf.RemoveTail()
		if err := m.insertWithRetry(r); err != nil {
			log.Printf("storage manager: %v", err)
			return ErrConnectionLost
		}
		log.Printf("stored reading: sensor %d value=%.2f ts=%d", r.ID, r.Value, r.Timestamp)
	}
}

// insertWithRetry attempts to persist r up to gatewaycfg.StorageRetries
// times before giving up.
func (m *Manager) insertWithRetry(r reading.Reading) error {
	var err error
	for attempt := 1; attempt <= gatewaycfg.StorageRetries; attempt++ {
		if err = m.insert(r); err == nil {
			return nil
		}
		log.Printf("storage manager: insert attempt %d/%d failed: %v", attempt, gatewaycfg.StorageRetries, err)
	}
	return errors.Wrap(err, "insert retries exhausted")
}

func (m *Manager) insert(r reading.Reading) error {
	ts := time.Unix(r.Timestamp, 0).UTC()
	_, err := m.insertStmt.Exec(r.ID, r.Value, ts)
	return err
}
