package audio

import (
	"encoding/binary"
	"sync"
)

// SampleRingBuffer keeps the most recent PCM samples for the input level
// display. One goroutine writes; any number may read.
type SampleRingBuffer struct {
	mu      sync.RWMutex
	samples []int16
	head    int // next write position
	count   int // valid samples, up to capacity
	window  int // samples returned by Read
}

// NewSampleRingBuffer creates a ring buffer with the given capacity. Read
// returns up to window samples.
func NewSampleRingBuffer(capacity, window int) *SampleRingBuffer {
	return &SampleRingBuffer{
		samples: make([]int16, capacity),
		window:  min(window, capacity),
	}
}

// Write appends samples, overwriting the oldest when full.
func (b *SampleRingBuffer) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.samples)
	for _, sample := range samples {
		b.samples[b.head] = sample
		b.head = (b.head + 1) % capacity
		if b.count < capacity {
			b.count++
		}
	}
}

// WritePCM decodes S16LE bytes and appends them.
func (b *SampleRingBuffer) WritePCM(data []byte) {
	b.Write(BytesToInt16(data))
}

// Read returns the most recent window of samples, oldest first.
func (b *SampleRingBuffer) Read() []int16 {
	return b.ReadSamples(b.window)
}

// ReadSamples returns up to n most recent samples in chronological order.
func (b *SampleRingBuffer) ReadSamples(n int) []int16 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 || n <= 0 {
		return nil
	}

	n = min(n, b.count)
	capacity := len(b.samples)
	start := (b.head - n + capacity) % capacity

	result := make([]int16, n)
	for i := range n {
		result[i] = b.samples[(start+i)%capacity]
	}

	return result
}

// Reset forgets all samples.
func (b *SampleRingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.head = 0
	b.count = 0
}

// Count returns the number of valid samples in the buffer.
func (b *SampleRingBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.count
}

// BytesToInt16 converts S16LE (signed 16-bit little-endian) bytes to int16 samples.
func BytesToInt16(data []byte) []int16 {
	numSamples := len(data) / 2
	if numSamples == 0 {
		return nil
	}

	samples := make([]int16, numSamples)
	for i := range numSamples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	return samples
}
