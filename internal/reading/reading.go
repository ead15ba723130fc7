// Package reading defines the sensor reading value type and its fixed-width
// wire encoding.
package reading

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Size is the number of bytes a single wire record occupies:
// 2 (id) + 8 (value) + 8 (ts).
const Size = 2 + 8 + 8

// Reading is one (sensor_id, value, timestamp) triple. It is immutable once
// constructed except for Processed, which the shared buffer alone mutates.
type Reading struct {
	ID        uint16
	Value     float64
	Timestamp int64 // seconds since epoch

	// Processed is the buffer's per-entry marker. Decode never sets it;
	// only the buffer's PeekTailAndMarkProcessed does.
	Processed bool
}

// Decode reads one fixed-size record from r in little-endian byte order:
// a u16 id, an IEEE-754 f64 value, and an i64 timestamp.
func Decode(r io.Reader) (Reading, error) {
	var buf [Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Reading{}, err
	}

	var rd Reading
	rd.ID = binary.LittleEndian.Uint16(buf[0:2])
	rd.Value = math.Float64frombits(binary.LittleEndian.Uint64(buf[2:10]))
	rd.Timestamp = int64(binary.LittleEndian.Uint64(buf[10:18]))
	return rd, nil
}

// Encode writes r to w in the wire format Decode expects. Used by tests and
// by any future in-process sensor simulator.
func Encode(w io.Writer, r Reading) error {
	var buf [Size]byte
	binary.LittleEndian.PutUint16(buf[0:2], r.ID)
	binary.LittleEndian.PutUint64(buf[2:10], math.Float64bits(r.Value))
	binary.LittleEndian.PutUint64(buf[10:18], uint64(r.Timestamp))
	_, err := w.Write(buf[:])
	return errors.Wrap(err, "reading: encode")
}
