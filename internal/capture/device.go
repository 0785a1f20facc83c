package capture

import "strings"

// DataCallback receives raw little-endian PCM as the input device produces it.
type DataCallback func(data []byte, frameCount uint32)

// Format describes the PCM stream requested from a device.
type Format struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultFormat is 16 kHz mono, what the transcription service expects.
var DefaultFormat = Format{SampleRate: SampleRate, Channels: Channels}

// Device opens exclusive capture streams on an audio input.
type Device interface {
	Open(format Format, cb DataCallback) (Stream, error)
}

// Stream is one open capture. Close releases the hardware and must be called
// exactly once, after Stop.
type Stream interface {
	Start() error
	Stop()
	Close()
}

// DeviceInfo names a capture input.
type DeviceInfo struct {
	ID   string
	Name string
}

func matchDevice(devices []DeviceInfo, want string) (DeviceInfo, bool) {
	want = strings.ToLower(strings.TrimSpace(want))
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), want) {
			return d, true
		}
	}
	return DeviceInfo{}, false
}
