package pipeline

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// measureDuration estimates the length of WAV and constant-bitrate MP3 data
// from their headers. It returns nil when the length cannot be determined.
func measureDuration(data []byte, mimeType string) *float64 {
	var seconds float64
	switch {
	case strings.Contains(mimeType, "wav"):
		seconds = wavDuration(data)
	case mimeType == "audio/mpeg":
		seconds = mp3Duration(data)
	}
	if seconds <= 0 {
		return nil
	}
	return &seconds
}

func wavDuration(data []byte) float64 {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return 0
	}

	var byteRate uint32
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		body := off + 8

		switch id {
		case "fmt ":
			if body+12 <= len(data) {
				byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
			}
		case "data":
			if byteRate == 0 {
				return 0
			}
			// Streams written before their length is known report 0 or
			// 0xFFFFFFFF here.
			if size == 0 || int(size) > len(data)-body {
				size = uint32(len(data) - body)
			}
			return float64(size) / float64(byteRate)
		}

		// Chunks are padded to an even length.
		off = body + int(size) + int(size&1)
	}

	return 0
}

var (
	mpeg1Layer3Kbps = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mpeg2Layer3Kbps = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

// mp3Duration reads the first Layer III frame header and assumes the rest
// of the stream has the same bitrate.
func mp3Duration(data []byte) float64 {
	off := 0
	if len(data) >= 10 && bytes.Equal(data[0:3], []byte("ID3")) {
		// Tag size is a 28-bit syncsafe integer.
		size := int(data[6]&0x7f)<<21 | int(data[7]&0x7f)<<14 | int(data[8]&0x7f)<<7 | int(data[9]&0x7f)
		off = 10 + size
	}

	for ; off+4 <= len(data); off++ {
		if data[off] != 0xff || data[off+1]&0xe0 != 0xe0 {
			continue
		}

		version := (data[off+1] >> 3) & 0x03
		layer := (data[off+1] >> 1) & 0x03
		bitrateIdx := data[off+2] >> 4
		if version == 0x01 || layer != 0x01 {
			continue
		}

		var kbps int
		if version == 0x03 {
			kbps = mpeg1Layer3Kbps[bitrateIdx]
		} else {
			kbps = mpeg2Layer3Kbps[bitrateIdx]
		}
		if kbps == 0 {
			continue
		}

		return float64(len(data)-off) * 8 / float64(kbps*1000)
	}

	return 0
}
