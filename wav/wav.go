// Package wav writes rendered engine output as a standard RIFF/WAVE file,
// either 16-bit PCM or 32-bit IEEE float.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/oxbowlabs/beatforge/ir"
)

// Encode renders buf (interleaved as L/R pairs) into a complete .wav file's
// bytes at sampleRate. pcm16 selects 16-bit PCM over 32-bit IEEE float.
func Encode(buf *ir.AudioBuffer, sampleRate uint32, pcm16 bool) ([]byte, error) {
	interleaved := interleave(buf)
	out := new(bytes.Buffer)
	writeHeader(out, len(interleaved), sampleRate, pcm16)
	if err := writeSamples(out, interleaved, pcm16); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	return out.Bytes(), nil
}

func interleave(buf *ir.AudioBuffer) []float32 {
	frames := buf.Frames()
	out := make([]float32, 0, frames*2)
	l, r := buf.Channel(0), buf.Channel(1)
	for i := 0; i < frames; i++ {
		out = append(out, l[i], r[i])
	}
	return out
}

func writeSamples(buf *bytes.Buffer, data []float32, pcm16 bool) error {
	if pcm16 {
		ints := make([]int16, len(data))
		for i, v := range data {
			ints[i] = int16(clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16))
		}
		return binary.Write(buf, binary.LittleEndian, ints)
	}
	return binary.Write(buf, binary.LittleEndian, data)
}

// writeHeader writes a 44 (pcm16) or 58 (float, with a fact chunk) byte
// RIFF/WAVE header for bufferLength interleaved stereo samples at
// sampleRate, following the classic WAVE chunk layout.
func writeHeader(buf *bytes.Buffer, bufferLength int, sampleRate uint32, pcm16 bool) {
	const numChannels = 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	factChunk := !pcm16
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
	}

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, sampleRate)
	binary.Write(buf, binary.LittleEndian, sampleRate*uint32(numChannels*bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0))
	}
	if factChunk {
		buf.WriteString("fact")
		binary.Write(buf, binary.LittleEndian, uint32(4))
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength))
	}
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
