package reading

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := Reading{ID: 17, Value: 18.5, Timestamp: 1001}

	var buf bytes.Buffer
	if err := Encode(&buf, want); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if buf.Len() != Size {
		t.Fatalf("encoded length = %d, want %d", buf.Len(), Size)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got.ID != want.ID || got.Value != want.Value || got.Timestamp != want.Timestamp {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if got.Processed {
		t.Fatalf("Decode must not set Processed")
	}
}

func TestDecodeShortRead(t *testing.T) {
	buf := bytes.NewReader([]byte{1, 2, 3})
	if _, err := Decode(buf); err == nil {
		t.Fatalf("Decode expected error on short read")
	}
}

func TestDecodeNegativeTimestamp(t *testing.T) {
	want := Reading{ID: 2, Value: -40.25, Timestamp: -1}

	var buf bytes.Buffer
	if err := Encode(&buf, want); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got.Timestamp != -1 {
		t.Fatalf("Timestamp = %d, want -1", got.Timestamp)
	}
}
