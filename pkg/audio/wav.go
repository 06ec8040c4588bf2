// Package audio provides the small amount of PCM plumbing the gateway needs:
// WAV decode/encode and mono 16-bit conversion helpers for preparing uploaded
// audio for transcription.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Clip is decoded 16-bit little-endian PCM with its format.
type Clip struct {
	// Data is interleaved little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int
}

var errShortWAV = errors.New("audio: truncated WAV data")

// DecodeWAV parses a RIFF/WAVE container holding 16-bit PCM and returns the
// raw sample data with its format. Compressed or non-16-bit encodings are
// rejected.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 {
		return Clip{}, errShortWAV
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, errors.New("audio: not a RIFF/WAVE file")
	}

	var (
		clip      Clip
		haveFmt   bool
		bitDepth  int
		audioFmt  int
		offset    = 12
		dataFound bool
	)

	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkLen > len(data) {
			return Clip{}, errShortWAV
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return Clip{}, errors.New("audio: malformed fmt chunk")
			}
			audioFmt = int(binary.LittleEndian.Uint16(data[body : body+2]))
			clip.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true

		case "data":
			clip.Data = data[body : body+chunkLen]
			dataFound = true
		}

		// Chunks are word-aligned.
		offset = body + chunkLen + chunkLen%2
	}

	if !haveFmt || !dataFound {
		return Clip{}, errors.New("audio: missing fmt or data chunk")
	}
	if audioFmt != 1 {
		return Clip{}, fmt.Errorf("audio: unsupported WAV encoding %d, want PCM", audioFmt)
	}
	if bitDepth != 16 {
		return Clip{}, fmt.Errorf("audio: unsupported bit depth %d, want 16", bitDepth)
	}
	if clip.Channels <= 0 || clip.SampleRate <= 0 {
		return Clip{}, errors.New("audio: invalid WAV format parameters")
	}
	return clip, nil
}

// EncodeWAV wraps 16-bit little-endian PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const headerLen = 44
	out := make([]byte, headerLen+len(pcm))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(out[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(out[34:36], 16)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
