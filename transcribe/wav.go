package transcribe

import (
	"bytes"
	"encoding/binary"
)

const wavHeaderSize = 44

// EncodeWAV packs float32 PCM into a mono 16-bit WAV container, the format
// the transcription endpoints accept. Samples outside [-1, 1] are clamped.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))

	write := func(v any) { _ = binary.Write(buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	write(uint32(36 + dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	write(uint32(16))              // fmt chunk size
	write(uint16(1))               // PCM
	write(uint16(1))               // mono
	write(uint32(sampleRate))      // sample rate
	write(uint32(sampleRate * 2))  // byte rate
	write(uint16(2))               // block align
	write(uint16(16))              // bits per sample

	buf.WriteString("data")
	write(uint32(dataSize))

	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		write(int16(s * 32767))
	}
	return buf.Bytes()
}
