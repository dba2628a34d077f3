package audio

import (
	"context"
	"encoding/binary"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/eduardohotta/cortex-sub000/internal/config"
	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
)

// frameBytes is 100ms of 16kHz mono s16le PCM, the unit the grabber emits.
const frameBytes = 3200

// levelInterval throttles volume emission to ~20Hz so the consumer is not
// flooded with per-frame levels.
const levelInterval = 50 * time.Millisecond

// Capture produces a continuous stream of PCM frames from the grabber
// subprocess, or from a simulated source when the subprocess cannot start.
// Device errors degrade to simulation; a crash emits Stopped and cleans up,
// restarting is the caller's call.
type Capture struct {
	cfg    config.AudioConfig
	logger *Logger.Logger

	mu        sync.Mutex
	capturing bool
	simulated bool
	cmd       *exec.Cmd
	simStop   context.CancelFunc

	frames  chan []byte
	levels  chan int
	stopped chan struct{}

	lastLevel time.Time
	devices   []Device
}

func NewCapture(cfg config.AudioConfig, logger *Logger.Logger) *Capture {
	return &Capture{
		cfg:     cfg,
		logger:  logger.Named("audio"),
		frames:  make(chan []byte, 64),
		levels:  make(chan int, 8),
		stopped: make(chan struct{}, 1),
	}
}

// Frames is the raw PCM output stream, one 100ms frame per element.
func (c *Capture) Frames() <-chan []byte { return c.frames }

// Levels carries the throttled 0-100 volume level.
func (c *Capture) Levels() <-chan int { return c.levels }

// Stopped signals that the capture session ended, either by Stop or by the
// subprocess dying.
func (c *Capture) Stopped() <-chan struct{} { return c.stopped }

// Start spawns the grabber for the resolved device. Idempotent: a second
// Start while capturing is a no-op. Spawn failure falls back to the
// simulated source rather than failing the pipeline.
func (c *Capture) Start(ctx context.Context, deviceID string) error {
	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = true
	c.mu.Unlock()

	c.mu.Lock()
	devices := c.devices
	c.mu.Unlock()
	if len(devices) == 0 {
		devices = c.EnumerateDevices(ctx)
	}
	id := ResolveDevice(deviceID, devices)
	c.logger.Infof("starting grabber for device %d", id)

	cmd := exec.Command(c.cfg.PythonPath, c.cfg.GrabberPath, "--device", strconv.Itoa(id))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.startSimulated()
		return nil
	}
	if err := cmd.Start(); err != nil {
		c.logger.Warnf("grabber spawn failed, degrading to simulated capture: %v", err)
		c.startSimulated()
		return nil
	}

	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()

	go func() {
		buf := make([]byte, frameBytes)
		for {
			n, rerr := stdout.Read(buf)
			if n > 0 {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				c.emitFrame(frame)
			}
			if rerr != nil {
				break
			}
		}
		_ = cmd.Wait()
		c.mu.Lock()
		crashed := c.capturing && c.cmd == cmd
		if crashed {
			c.capturing = false
			c.cmd = nil
		}
		c.mu.Unlock()
		if crashed {
			c.logger.Warnf("grabber exited, capture stopped")
			c.notifyStopped()
		}
	}()

	return nil
}

// startSimulated runs the degraded mode source: low-amplitude frames on a
// fixed 100ms cadence so downstream stages keep moving.
func (c *Capture) startSimulated() {
	simCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.simulated = true
	c.simStop = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-simCtx.Done():
				return
			case <-ticker.C:
				frame := make([]byte, frameBytes)
				for i := 0; i+1 < len(frame); i += 4 {
					binary.LittleEndian.PutUint16(frame[i:], uint16(12))
				}
				c.emitFrame(frame)
			}
		}
	}()
}

// Stop tears the session down forcibly; low-latency teardown beats a clean
// drain here. Idempotent.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	cmd := c.cmd
	c.cmd = nil
	simStop := c.simStop
	c.simStop = nil
	c.simulated = false
	c.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if simStop != nil {
		simStop()
	}
	c.notifyStopped()
}

// IsCapturing reports whether a session (real or simulated) is active.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

func (c *Capture) emitFrame(frame []byte) {
	select {
	case c.frames <- frame:
	default:
		// consumer stalled, drop rather than block the read loop
	}

	now := time.Now()
	if now.Sub(c.lastLevel) < levelInterval {
		return
	}
	c.lastLevel = now
	select {
	case c.levels <- Level(frame):
	default:
	}
}

func (c *Capture) notifyStopped() {
	select {
	case c.stopped <- struct{}{}:
	default:
	}
}

// Level computes the 0-100 volume of an s16le frame: RMS normalized against
// full scale and boosted 4x, clamped at 100.
func Level(frame []byte) int {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(frame); i += 2 {
		s := int16(binary.LittleEndian.Uint16(frame[i:]))
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(samples))
	level := int(rms / 32768 * 400)
	if level > 100 {
		level = 100
	}
	return level
}
