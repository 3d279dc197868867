package audio

import (
	"errors"

	"github.com/gen2brain/malgo"
)

const (
	// DefaultSampleRate is 16 kHz, enough for speech recognition.
	DefaultSampleRate = 16000
	// DefaultChannels is mono.
	DefaultChannels = 1
	// DefaultBatchBytes is 128ms of 16 kHz mono S16LE.
	DefaultBatchBytes = 4096

	// MimeType and Format describe recorded clips.
	MimeType = "audio/mpeg"
	Format   = "mp3"
)

// DeviceConfig describes the capture format requested from the microphone.
type DeviceConfig struct {
	Format          malgo.FormatType
	CaptureChannels int
	SampleRate      int

	// DeviceName selects a capture device by name. Empty means the system default.
	DeviceName string
}

// DefaultDeviceConfig captures S16 mono PCM at DefaultSampleRate, the input
// StreamingEncoder expects.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Format:          malgo.FormatS16,
		CaptureChannels: DefaultChannels,
		SampleRate:      DefaultSampleRate,
	}
}

// EncoderConfig configures StreamingEncoder. Input is always S16LE mono.
type EncoderConfig struct {
	SampleRate int
	Channels   int
	// BatchBytes is how much PCM accumulates before a batch is encoded.
	BatchBytes int
}

// Validate reports the first unusable field.
func (c EncoderConfig) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return errors.New("sample rate must be positive")
	case c.Channels != 1:
		return errors.New("encoder input must be mono")
	case c.BatchBytes <= 0:
		return errors.New("batch size must be positive")
	}
	return nil
}

// WithDefaults fills zero fields.
func (c EncoderConfig) WithDefaults() EncoderConfig {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.BatchBytes == 0 {
		c.BatchBytes = DefaultBatchBytes
	}
	return c
}
