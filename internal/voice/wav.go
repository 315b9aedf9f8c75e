package voice

import (
	"bytes"
	"encoding/binary"
	"io"
)

const (
	bitsPerSample = 16
	channels      = 1
	wavHeaderSize = 44
)

// EncodeWAV frames PCM16 mono samples as a WAV file.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	writeWAVHeader(&buf, len(pcm), sampleRate)
	buf.Write(pcm)
	return buf.Bytes()
}

func writeWAVHeader(w io.Writer, dataLen, sampleRate int) {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	le := binary.LittleEndian
	hdr := make([]byte, wavHeaderSize)
	copy(hdr[0:4], "RIFF")
	le.PutUint32(hdr[4:8], uint32(36+dataLen))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	le.PutUint32(hdr[16:20], 16)
	le.PutUint16(hdr[20:22], 1) // PCM
	le.PutUint16(hdr[22:24], channels)
	le.PutUint32(hdr[24:28], uint32(sampleRate))
	le.PutUint32(hdr[28:32], uint32(byteRate))
	le.PutUint16(hdr[32:34], uint16(blockAlign))
	le.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	le.PutUint32(hdr[40:44], uint32(dataLen))
	_, _ = w.Write(hdr)
}

// WAVSink buffers PCM written to it and emits a WAV file to the underlying
// writer on Close.
type WAVSink struct {
	w          io.Writer
	sampleRate int
	buf        bytes.Buffer
}

// NewWAVSink creates a sink writing WAV framed audio to w.
func NewWAVSink(w io.Writer, sampleRate int) *WAVSink {
	return &WAVSink{w: w, sampleRate: sampleRate}
}

func (s *WAVSink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

// Close writes the framed audio.
func (s *WAVSink) Close() error {
	_, err := s.w.Write(EncodeWAV(s.buf.Bytes(), s.sampleRate))
	return err
}
