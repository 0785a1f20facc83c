//go:build !cgo

package capture

import "errors"

var errNoCgo = errors.New("audio capture requires a cgo build")

// MalgoDevice is unavailable without cgo; Open always fails.
type MalgoDevice struct {
	Name string
}

// NewMalgoDevice returns a device that reports itself unavailable.
func NewMalgoDevice(name string) Device {
	return &MalgoDevice{Name: name}
}

func (m *MalgoDevice) Devices() ([]DeviceInfo, error) { return nil, errNoCgo }

func (m *MalgoDevice) Open(Format, DataCallback) (Stream, error) { return nil, errNoCgo }
