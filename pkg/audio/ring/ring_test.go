package ring

import (
	"bytes"
	"testing"
	"time"
)

func testFrame(tag byte, size int) Frame {
	data := bytes.Repeat([]byte{tag}, size)
	return Frame{
		Data:       data,
		Timestamp:  time.Unix(0, 1700000000000000000),
		SampleRate: 16000,
		Channels:   1,
	}
}

func TestFrameRoundTrip(t *testing.T) {
	in := testFrame(0xAB, 320)
	raw, err := in.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var out Frame
	if err := out.UnmarshalBinary(raw); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Data, in.Data) {
		t.Fatal("data mismatch after round trip")
	}
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Fatalf("metadata mismatch: %+v", out)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp mismatch: %v vs %v", out.Timestamp, in.Timestamp)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	var f Frame
	if err := f.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestEnqueueDequeueOrder(t *testing.T) {
	b := New(4096)
	for i := byte(1); i <= 3; i++ {
		if err := b.Enqueue(testFrame(i, 100)); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	for i := byte(1); i <= 3; i++ {
		f, ok := b.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d failed", i)
		}
		if f.Data[0] != i {
			t.Fatalf("out of order: got tag %d, want %d", f.Data[0], i)
		}
	}
	if _, ok := b.Dequeue(); ok {
		t.Fatal("expected empty buffer")
	}
}

func TestEnqueueEvictsOldestWhenFull(t *testing.T) {
	// room for roughly three 100-byte frames
	b := New(400)
	for i := byte(1); i <= 5; i++ {
		if err := b.Enqueue(testFrame(i, 100)); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	frames := b.DrainAll()
	if len(frames) == 0 {
		t.Fatal("expected surviving frames")
	}
	// the newest frame must always survive
	if last := frames[len(frames)-1]; last.Data[0] != 5 {
		t.Fatalf("newest frame lost, last tag = %d", last.Data[0])
	}
	// and the oldest must be gone
	if first := frames[0]; first.Data[0] == 1 {
		t.Fatal("oldest frame should have been evicted")
	}
}

func TestEnqueueRejectsOversizedFrame(t *testing.T) {
	b := New(64)
	if err := b.Enqueue(testFrame(1, 128)); err == nil {
		t.Fatal("expected error for frame larger than the buffer")
	}
}

func TestDrainAllEmpties(t *testing.T) {
	b := New(4096)
	_ = b.Enqueue(testFrame(1, 50))
	_ = b.Enqueue(testFrame(2, 50))

	if got := len(b.DrainAll()); got != 2 {
		t.Fatalf("drained %d frames, want 2", got)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer not empty after drain: %d", b.Len())
	}
	if got := b.DrainAll(); got != nil {
		t.Fatalf("second drain should be empty, got %d frames", len(got))
	}
}
