package ring

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/smallnest/ringbuffer"
)

// Frame is one captured PCM slice held between chunk flushes.
type Frame struct {
	Data       []byte
	Timestamp  time.Time
	SampleRate int32
	Channels   int16
}

const frameHeaderLen = 8 + 4 + 2 + 4 // timestamp + sampleRate + channels + dataLen

func (f *Frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, frameHeaderLen+len(f.Data))

	offset := 0
	binary.LittleEndian.PutUint64(buf[offset:], uint64(f.Timestamp.UnixNano()))
	offset += 8
	binary.LittleEndian.PutUint32(buf[offset:], uint32(f.SampleRate))
	offset += 4
	binary.LittleEndian.PutUint16(buf[offset:], uint16(f.Channels))
	offset += 2
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(f.Data)))
	offset += 4
	copy(buf[offset:], f.Data)

	return buf, nil
}

func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < frameHeaderLen {
		return errors.New("frame too short")
	}

	offset := 0
	f.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(data[offset:])))
	offset += 8
	f.SampleRate = int32(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	f.Channels = int16(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	dataLen := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	if len(data[offset:]) < int(dataLen) {
		return errors.New("frame data truncated")
	}
	f.Data = make([]byte, dataLen)
	copy(f.Data, data[offset:offset+int(dataLen)])

	return nil
}

// Buffer is a bounded FIFO of audio frames. When full, the oldest frames are
// evicted to make room: bounded memory matters more than completeness while
// a flush is pending.
type Buffer interface {
	Enqueue(f Frame) error
	Dequeue() (Frame, bool)
	DrainAll() []Frame
	Len() int
	Capacity() int
}

type rbBuffer struct {
	size int
	rb   *ringbuffer.RingBuffer
}

func New(size int) Buffer {
	return &rbBuffer{
		size: size,
		rb:   ringbuffer.New(size).SetBlocking(false),
	}
}

func (r *rbBuffer) Capacity() int { return r.size }

func (r *rbBuffer) Len() int { return r.rb.Length() }

func (r *rbBuffer) Enqueue(f Frame) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	// 4-byte length prefix ahead of every frame
	required := len(data) + 4
	if required > r.rb.Capacity() {
		return errors.New("audio frame too large for buffer")
	}

	for r.rb.Free() < required {
		if !r.skipOldestFrame() {
			r.rb.Reset()
			break
		}
	}

	prefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(prefix, uint32(len(data)))
	if _, err := r.rb.Write(prefix); err != nil {
		return err
	}
	_, err = r.rb.Write(data)
	return err
}

func (r *rbBuffer) Dequeue() (Frame, bool) {
	if r.rb.IsEmpty() {
		return Frame{}, false
	}

	prefix := make([]byte, 4)
	if n, err := r.rb.Read(prefix); err != nil || n != 4 {
		return Frame{}, false
	}
	size := binary.LittleEndian.Uint32(prefix)

	data := make([]byte, size)
	if n, err := r.rb.Read(data); err != nil || n != int(size) {
		return Frame{}, false
	}

	var f Frame
	if err := f.UnmarshalBinary(data); err != nil {
		return Frame{}, false
	}
	return f, true
}

// DrainAll empties the buffer and returns the frames in arrival order.
func (r *rbBuffer) DrainAll() []Frame {
	var frames []Frame
	for {
		f, ok := r.Dequeue()
		if !ok {
			return frames
		}
		frames = append(frames, f)
	}
}

func (r *rbBuffer) skipOldestFrame() bool {
	if r.rb.IsEmpty() {
		return false
	}
	prefix := make([]byte, 4)
	if n, err := r.rb.Read(prefix); err != nil || n != 4 {
		return false
	}
	size := binary.LittleEndian.Uint32(prefix)
	if size > 0 {
		skip := make([]byte, size)
		if n, err := r.rb.Read(skip); err != nil || n != int(size) {
			return false
		}
	}
	return true
}
