package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alkime/callcoach/pkg/collections"
	"github.com/gen2brain/malgo"
)

// DataPacket is one callback's worth of raw PCM bytes.
type DataPacket = []byte

// Source hands out exclusive capture streams. Only one Stream may be held at
// a time; Release must be called before acquiring again.
type Source interface {
	// Acquire opens the capture device. Packets are written into dataC once
	// Start is called on the returned Stream.
	Acquire(ctx context.Context, dataC chan<- DataPacket) (Stream, error)
}

// Stream is an acquired capture device.
type Stream interface {
	// Start begins (or resumes) delivering packets.
	Start() error
	// Stop pauses delivery without releasing the device.
	Stop() error
	// Release stops capture and frees the device. No packets are delivered
	// after Release returns. Safe to call more than once.
	Release()
}

// ErrDeviceBusy is returned when the microphone is already held.
var ErrDeviceBusy = errors.New("capture device already in use")

// Microphone is a malgo backed Source.
type Microphone struct {
	conf DeviceConfig

	mu   sync.Mutex
	held bool
}

// NewMicrophone creates a microphone source for the given capture format.
func NewMicrophone(conf DeviceConfig) *Microphone {
	return &Microphone{conf: conf}
}

// Acquire initializes the capture device.
func (m *Microphone) Acquire(_ context.Context, dataC chan<- DataPacket) (Stream, error) {
	if dataC == nil {
		return nil, errors.New("data channel is nil. unable to allocate device")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held {
		return nil, ErrDeviceBusy
	}

	mgCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	devCnf := malgo.DefaultDeviceConfig(malgo.Capture)
	devCnf.Capture.Format = m.conf.Format
	devCnf.Capture.Channels = uint32(m.conf.CaptureChannels)
	devCnf.SampleRate = uint32(m.conf.SampleRate)

	if m.conf.DeviceName != "" {
		id, err := findCaptureDevice(mgCtx, m.conf.DeviceName)
		if err != nil {
			uninitializeContext(mgCtx)
			return nil, err
		}
		devCnf.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, samples []byte, _ uint32) {
			// malgo reuses the sample buffer between callbacks.
			pkt := make([]byte, len(samples))
			copy(pkt, samples)
			dataC <- pkt
		},
	}

	mgDevice, err := malgo.InitDevice(mgCtx.Context, devCnf, callbacks)
	if err != nil {
		uninitializeContext(mgCtx)
		return nil, fmt.Errorf("failed to initialize malgo device: %w", err)
	}

	m.held = true

	return &captureStream{mic: m, mgCtx: mgCtx, mgDevice: mgDevice}, nil
}

func (m *Microphone) release() {
	m.mu.Lock()
	m.held = false
	m.mu.Unlock()
}

// EnumerateDevices lists available capture devices.
func (m *Microphone) EnumerateDevices(_ context.Context) ([]Info, error) {
	// Initialize an empty context. This is fine for just
	// enumerating the available devices.
	devCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer uninitializeContext(devCtx)

	captureDevices, err := devCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture devices: %w", err)
	}

	return collections.Apply(captureDevices, malgoDeviceInfoToDeviceInfo), nil
}

type captureStream struct {
	mic *Microphone

	mu       sync.Mutex
	mgCtx    *malgo.AllocatedContext
	mgDevice *malgo.Device
}

func (s *captureStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mgDevice == nil {
		return errors.New("capture stream already released")
	}

	if s.mgDevice.IsStarted() {
		return nil
	}

	if err := s.mgDevice.Start(); err != nil {
		return fmt.Errorf("failed to start malgo device: %w", err)
	}

	return nil
}

func (s *captureStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mgDevice == nil || !s.mgDevice.IsStarted() {
		return nil
	}

	if err := s.mgDevice.Stop(); err != nil {
		return fmt.Errorf("failed to stop malgo device: %w", err)
	}

	return nil
}

func (s *captureStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mgDevice == nil {
		return
	}

	// Uninit blocks until the data callback has returned.
	s.mgDevice.Uninit()
	uninitializeContext(s.mgCtx)
	s.mgDevice = nil
	s.mgCtx = nil
	s.mic.release()
}

func findCaptureDevice(mgCtx *malgo.AllocatedContext, name string) (malgo.DeviceID, error) {
	devices, err := mgCtx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("failed to get capture devices: %w", err)
	}

	for _, dev := range devices {
		if dev.Name() == name {
			return dev.ID, nil
		}
	}

	return malgo.DeviceID{}, fmt.Errorf("capture device %q not found", name)
}

type Info struct {
	Name        string
	IsDefault   bool
	FormatCount int
	Formats     []string
}

func malgoDeviceInfoToDeviceInfo(mdi malgo.DeviceInfo) Info {
	formats := make([]string, len(mdi.Formats))
	for i, mf := range mdi.Formats {
		formats[i] = fmt.Sprintf("(SampleSizeBytes: %d, Channels: %d, SampleRate: %d)",
			malgo.SampleSizeInBytes(mf.Format),
			mf.Channels, mf.SampleRate)
	}
	return Info{
		Name:        mdi.Name(),
		IsDefault:   mdi.IsDefault != 0,
		FormatCount: int(mdi.FormatCount),
		Formats:     formats,
	}
}

func uninitializeContext(deviceCtx *malgo.AllocatedContext) {
	if deviceCtx == nil {
		return
	}

	if err := deviceCtx.Uninit(); err != nil {
		slog.Error("failed to uninitialize malgo context", "error", err)
	}
	deviceCtx.Free()
}
