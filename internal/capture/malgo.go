//go:build cgo

package capture

import (
	"encoding/hex"
	"fmt"

	"github.com/gen2brain/malgo"
)

// MalgoDevice captures from a system input through miniaudio. An empty Name
// selects the platform default input; otherwise the first input whose name
// contains Name (case-insensitive) is used.
type MalgoDevice struct {
	Name string
}

// NewMalgoDevice returns the hardware input.
func NewMalgoDevice(name string) Device {
	return &MalgoDevice{Name: name}
}

// Devices lists the capture inputs visible to miniaudio.
func (m *MalgoDevice) Devices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()
	return listDevices(ctx)
}

func listDevices(ctx *malgo.AllocatedContext) ([]DeviceInfo, error) {
	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceInfo{
			ID:   hex.EncodeToString(d.ID[:]),
			Name: d.Name(),
		})
	}
	return out, nil
}

func (m *MalgoDevice) Open(format Format, cb DataCallback) (Stream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	release := func() {
		_ = ctx.Uninit()
		ctx.Free()
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = format.Channels
	cfg.SampleRate = format.SampleRate

	if m.Name != "" {
		devices, err := listDevices(ctx)
		if err != nil {
			release()
			return nil, err
		}
		info, ok := matchDevice(devices, m.Name)
		if !ok {
			release()
			return nil, fmt.Errorf("no capture device matching %q", m.Name)
		}
		idBytes, err := hex.DecodeString(info.ID)
		if err != nil {
			release()
			return nil, fmt.Errorf("invalid device id: %w", err)
		}
		var id malgo.DeviceID
		copy(id[:], idBytes)
		cfg.Capture.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			cb(input, frameCount)
		},
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	return &malgoStream{device: dev, release: release}, nil
}

type malgoStream struct {
	device  *malgo.Device
	release func()
}

func (s *malgoStream) Start() error { return s.device.Start() }

func (s *malgoStream) Stop() { _ = s.device.Stop() }

func (s *malgoStream) Close() {
	s.device.Uninit()
	s.release()
}
