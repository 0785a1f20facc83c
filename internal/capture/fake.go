package capture

import (
	"sync"
)

const fakeChunkBytes = 1024 * 2

// FakeDevice replays fixed PCM instead of touching hardware. Every Start feeds
// the whole buffer through the callback in fixed-size chunks.
type FakeDevice struct {
	PCM     []byte
	OpenErr error

	mu     sync.Mutex
	opened int
	closed int
}

// NewFakeDevice returns a device that replays pcm on every stream start.
func NewFakeDevice(pcm []byte) *FakeDevice {
	return &FakeDevice{PCM: pcm}
}

func (f *FakeDevice) Open(_ Format, cb DataCallback) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.opened++
	return &fakeStream{dev: f, cb: cb}, nil
}

// Held reports whether a stream is open and not yet closed.
func (f *FakeDevice) Held() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened > f.closed
}

// Opens returns how many streams were opened.
func (f *FakeDevice) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

type fakeStream struct {
	dev  *FakeDevice
	cb   DataCallback
	once sync.Once
}

func (s *fakeStream) Start() error {
	for pos := 0; pos < len(s.dev.PCM); pos += fakeChunkBytes {
		end := min(pos+fakeChunkBytes, len(s.dev.PCM))
		chunk := make([]byte, end-pos)
		copy(chunk, s.dev.PCM[pos:end])
		s.cb(chunk, uint32(len(chunk)/2))
	}
	return nil
}

func (s *fakeStream) Stop() {}

func (s *fakeStream) Close() {
	s.once.Do(func() {
		s.dev.mu.Lock()
		s.dev.closed++
		s.dev.mu.Unlock()
	})
}
