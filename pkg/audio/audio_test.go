package audio

import (
	"encoding/binary"
	"testing"
)

func TestBuildWAVHeader(t *testing.T) {
	pcm := make([]byte, 3200)
	wav := BuildWAV(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF/WAVE magic: %q %q", wav[0:4], wav[8:12])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Fatalf("riff size = %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Fatalf("channels = %d, want mono", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Fatalf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Fatalf("bits per sample = %d", got)
	}
	if string(wav[36:40]) != "data" {
		t.Fatalf("missing data chunk marker: %q", wav[36:40])
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d", got)
	}
}

func TestBuildWAVDefaultsSampleRate(t *testing.T) {
	wav := BuildWAV(nil, 0)
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("default sample rate = %d", got)
	}
}

func TestLevelSilence(t *testing.T) {
	if got := Level(make([]byte, 3200)); got != 0 {
		t.Fatalf("silence level = %d", got)
	}
	if got := Level(nil); got != 0 {
		t.Fatalf("empty frame level = %d", got)
	}
}

func TestLevelFullScaleClamps(t *testing.T) {
	frame := make([]byte, 3200)
	for i := 0; i+1 < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(32000))
	}
	if got := Level(frame); got != 100 {
		t.Fatalf("full-scale level = %d, want 100", got)
	}
}

func TestLevelQuietSignal(t *testing.T) {
	frame := make([]byte, 3200)
	for i := 0; i+1 < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(800))
	}
	// rms 800 of 32768 full scale, boosted 4x: ~9
	got := Level(frame)
	if got < 8 || got > 10 {
		t.Fatalf("quiet level = %d, want ~9", got)
	}
}

func TestResolveDevice(t *testing.T) {
	devices := []Device{
		{ID: 0, Name: "Speakers", Type: "output"},
		{ID: 3, Name: "Stereo Mix", Type: "loopback", IsLoopback: true},
		{ID: 5, Name: "Microphone", Type: "input"},
	}

	cases := []struct {
		id      string
		devices []Device
		want    int
	}{
		{"7", devices, 7},          // explicit numeric id wins
		{"default", devices, 3},    // loopback preferred
		{"system", devices, 3},     // system alias behaves like default
		{"", devices, 3},           // empty id behaves like default
		{"default", devices[2:], 5}, // no loopback: first input
		{"default", devices[:1], 0}, // nothing usable: device 0
		{"not-a-number", devices, 3},
	}
	for _, c := range cases {
		if got := ResolveDevice(c.id, c.devices); got != c.want {
			t.Errorf("ResolveDevice(%q) = %d, want %d", c.id, got, c.want)
		}
	}
}
