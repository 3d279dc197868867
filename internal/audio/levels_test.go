package audio_test

import (
	"testing"

	"github.com/alkime/callcoach/internal/audio"
	"github.com/stretchr/testify/require"
)

func TestSampleRingBuffer(t *testing.T) {
	t.Parallel()

	t.Run("write and read", func(t *testing.T) {
		buf := audio.NewSampleRingBuffer(10, 10)
		buf.Write([]int16{1, 2, 3, 4, 5})

		require.Equal(t, []int16{1, 2, 3, 4, 5}, buf.ReadSamples(5))
		require.Equal(t, 5, buf.Count())
	})

	t.Run("empty write", func(t *testing.T) {
		buf := audio.NewSampleRingBuffer(10, 10)
		buf.Write(nil)

		require.Equal(t, 0, buf.Count())
		require.Nil(t, buf.Read())
	})

	t.Run("wraparound keeps newest", func(t *testing.T) {
		buf := audio.NewSampleRingBuffer(5, 5)
		buf.Write([]int16{1, 2})
		buf.Write([]int16{3, 4, 5, 6, 7})

		require.Equal(t, []int16{3, 4, 5, 6, 7}, buf.ReadSamples(5))
	})

	t.Run("read is limited to window", func(t *testing.T) {
		buf := audio.NewSampleRingBuffer(10, 3)
		buf.Write([]int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

		require.Equal(t, []int16{8, 9, 10}, buf.Read())
	})

	t.Run("pcm bytes are little endian", func(t *testing.T) {
		buf := audio.NewSampleRingBuffer(4, 4)
		buf.WritePCM([]byte{0x01, 0x00, 0xff, 0xff, 0x7f})

		require.Equal(t, []int16{1, -1}, buf.Read())
	})

	t.Run("reset", func(t *testing.T) {
		buf := audio.NewSampleRingBuffer(4, 4)
		buf.Write([]int16{1, 2})
		buf.Reset()

		require.Equal(t, 0, buf.Count())
	})
}
