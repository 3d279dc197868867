package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	mp3encoder "github.com/braheezy/shine-mp3/pkg/mp3"
)

// StreamingEncoder turns a stream of S16LE mono PCM packets into MP3 frames.
// It batches PCM up to EncoderConfig.BatchBytes and encodes on a background
// goroutine until the input closes or the context ends. Whatever is still
// buffered is encoded before Wait returns.
type StreamingEncoder struct {
	config EncoderConfig
	input  <-chan []byte
	output *countingWriter
	meter  *SampleRingBuffer

	mp3     *mp3encoder.Encoder
	pending []byte

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// NewStreamingEncoder validates config and wires input to output. Nothing
// runs until Start.
func NewStreamingEncoder(config EncoderConfig, input <-chan []byte, output io.Writer) (*StreamingEncoder, error) {
	if input == nil {
		return nil, errors.New("input channel cannot be nil")
	}
	if output == nil {
		return nil, errors.New("output writer cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encoder config: %w", err)
	}

	return &StreamingEncoder{ //nolint:exhaustruct // mp3 and error state are set by Start
		config:  config,
		input:   input,
		output:  &countingWriter{w: output},
		pending: make([]byte, 0, config.BatchBytes),
	}, nil
}

// WithMeter copies every packet into buf for level display. Call before Start.
func (e *StreamingEncoder) WithMeter(buf *SampleRingBuffer) *StreamingEncoder {
	e.meter = buf
	return e
}

// Start launches the encoding goroutine.
func (e *StreamingEncoder) Start(ctx context.Context) error {
	if e.mp3 != nil {
		return errors.New("encoder already started")
	}

	// shine-mp3 mis-advances its input for mono, so frames are encoded as
	// stereo with both channels equal.
	e.mp3 = mp3encoder.NewEncoder(e.config.SampleRate, 2)

	e.wg.Go(func() {
		defer func() {
			if err := e.Flush(); err != nil {
				e.setError(fmt.Errorf("failed to flush encoder on shutdown: %w", err))
			}
		}()

		for {
			select {
			case pkt, ok := <-e.input:
				if !ok {
					return
				}
				if err := e.push(pkt); err != nil {
					e.setError(err)
					return
				}
			case <-ctx.Done():
				e.setError(fmt.Errorf("encoder context cancelled: %w", ctx.Err()))
				return
			}
		}
	})

	return nil
}

func (e *StreamingEncoder) push(pkt []byte) error {
	if e.meter != nil {
		e.meter.WritePCM(pkt)
	}

	e.pending = append(e.pending, pkt...)
	if len(e.pending) < e.config.BatchBytes {
		return nil
	}
	return e.encodePending()
}

// encodePending encodes every whole sample in pending. An odd trailing byte
// stays for the next packet.
func (e *StreamingEncoder) encodePending() error {
	frames := len(e.pending) / 2
	if frames == 0 {
		return nil
	}

	stereo := duplicateToStereo(e.pending[:frames*2])
	slog.Debug("encoding MP3 batch", "frames", frames)

	if err := e.mp3.Write(e.output, stereo); err != nil {
		return fmt.Errorf("failed to encode audio to MP3: %w", err)
	}

	e.pending = e.pending[:copy(e.pending, e.pending[frames*2:])]

	return nil
}

// duplicateToStereo decodes S16LE mono into interleaved L=R samples.
func duplicateToStereo(pcm []byte) []int16 {
	out := make([]int16, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:])) //nolint:gosec // reinterpreting S16LE
		out[i], out[i+1] = s, s
	}
	return out
}

// Flush encodes whatever is pending. Safe to call repeatedly.
func (e *StreamingEncoder) Flush() error {
	if err := e.encodePending(); err != nil {
		return fmt.Errorf("failed to flush MP3 encoder: %w", err)
	}
	return nil
}

// Wait blocks until the goroutine exits and returns the first error.
func (e *StreamingEncoder) Wait() error {
	e.wg.Wait()
	return e.err
}

// BytesWritten is the MP3 output size so far.
func (e *StreamingEncoder) BytesWritten() int64 {
	return e.output.n.Load()
}

func (e *StreamingEncoder) setError(err error) {
	e.errOnce.Do(func() {
		e.err = err
		slog.Debug("streaming encoder error", "error", err)
	})
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
