package audio

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
)

// Device describes one audio endpoint reported by the grabber helper.
type Device struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Type              string `json:"type"` // input | output | duplex | loopback
	IsLoopback        bool   `json:"is_loopback"`
	MaxInputChannels  int    `json:"max_input_channels"`
	MaxOutputChannels int    `json:"max_output_channels"`
	DefaultSampleRate int    `json:"default_samplerate"`
}

// defaultDevice is what enumeration degrades to when the helper is
// unavailable; the pipeline keeps working against it in simulated mode.
func defaultDevice() Device {
	return Device{ID: 0, Name: "Default Device (Input)", Type: "input"}
}

// EnumerateDevices shells out to the grabber helper with --list and parses
// its JSON device dump. Enumeration never fails hard: any spawn or parse
// error yields a single synthetic default device.
func (c *Capture) EnumerateDevices(ctx context.Context) []Device {
	var devices []Device
	cmd := exec.CommandContext(ctx, c.cfg.PythonPath, c.cfg.GrabberPath, "--list")
	out, err := cmd.Output()
	if err != nil {
		c.logger.Warnf("device enumeration failed, using synthetic default: %v", err)
	} else if jerr := json.Unmarshal(out, &devices); jerr != nil || len(devices) == 0 {
		c.logger.Warnf("device list unparseable, using synthetic default: %v", jerr)
		devices = nil
	} else {
		c.logger.Infof("found %d audio devices", len(devices))
	}
	if len(devices) == 0 {
		devices = []Device{defaultDevice()}
	}

	c.mu.Lock()
	c.devices = devices
	c.mu.Unlock()
	return devices
}

// ResolveDevice maps "default"/"system" (or an empty id) to the best-guess
// loopback device: a loopback-capable device if any, else the first input
// device, else device 0.
func ResolveDevice(id string, devices []Device) int {
	if id != "" && id != "default" && id != "system" {
		if n, err := strconv.Atoi(id); err == nil {
			return n
		}
	}
	for _, d := range devices {
		if d.IsLoopback || d.Type == "loopback" {
			return d.ID
		}
	}
	for _, d := range devices {
		if d.Type == "input" || d.Type == "duplex" {
			return d.ID
		}
	}
	return 0
}
