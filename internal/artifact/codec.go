package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Codec errors.
var (
	ErrInvalidAudio      = errors.New("invalid wav data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// WAV fmt-chunk audio formats.
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// BitDepth is the sample width of every WAV this package writes.
const BitDepth = 16

// DecodeWAV parses a WAV container into a mono 16-bit buffer. 16-bit integer
// PCM is kept unchanged, 32-bit float samples are clipped and scaled, and
// any other width is rejected with ErrUnsupportedFormat.
func DecodeWAV(data []byte) (*audio.IntBuffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, ErrInvalidAudio
	}

	format := int(d.WavAudioFormat)
	if format == wavFormatExtensible {
		// The decoder skips the extension; the real tag leads the subformat GUID.
		if sub, ok := extensibleSubFormat(data); ok {
			format = sub
		} else {
			format = wavFormatPCM
		}
	}

	switch {
	case d.BitDepth == 16 && format == wavFormatPCM:
		buf, err := d.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		buf.SourceBitDepth = BitDepth
		return ToMono(buf), nil

	case d.BitDepth == 32 && format == wavFormatFloat:
		if !d.WasPCMAccessed() {
			if err := d.FwdToPCM(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
			}
		}
		raw, err := io.ReadAll(io.LimitReader(d.PCMChunk, int64(d.PCMChunk.Size)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		floats := make([]float64, len(raw)/4)
		for i := range floats {
			floats[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		buf := &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: int(d.NumChans), SampleRate: int(d.SampleRate)},
			Data:           FloatsToPCM16(floats),
			SourceBitDepth: BitDepth,
		}
		return ToMono(buf), nil

	default:
		return nil, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedFormat, format, d.BitDepth)
	}
}

// extensibleSubFormat returns the format tag of a WAVE_FORMAT_EXTENSIBLE fmt
// chunk: the first two bytes of its subformat GUID.
func extensibleSubFormat(data []byte) (int, bool) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, false
	}
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4:]))
		body := off + 8
		if id == "fmt " {
			// tag(2) channels(2) rate(4) byterate(4) align(2) bits(2)
			// cbSize(2) validBits(2) channelMask(4) subformat(16)
			if size < 40 || body+40 > len(data) {
				return 0, false
			}
			return int(binary.LittleEndian.Uint16(data[body+24:])), true
		}
		off = body + size + size%2
	}
	return 0, false
}

// EncodeWAV writes buf as a 16-bit integer PCM WAV.
func EncodeWAV(buf *audio.IntBuffer) ([]byte, error) {
	if buf == nil || buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, ErrInvalidAudio
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, buf.Format.SampleRate, BitDepth, channels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.Bytes(), nil
}

// PCM16FromBytes interprets raw little-endian 16-bit mono samples.
func PCM16FromBytes(raw []byte, sampleRate int) (*audio.IntBuffer, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: pcm payload not aligned", ErrInvalidAudio)
	}
	samples := make([]int, len(raw)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: BitDepth,
	}, nil
}

// FloatsToPCM16 clips samples to [-1, 1] and scales them to the 16-bit range.
func FloatsToPCM16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, v := range samples {
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		out[i] = int(v * math.MaxInt16)
	}
	return out
}

// ToMono averages interleaved channels into one. Mono input is returned as is.
func ToMono(buf *audio.IntBuffer) *audio.IntBuffer {
	ch := buf.Format.NumChannels
	if ch <= 1 {
		if buf.Format.NumChannels == 0 {
			buf.Format.NumChannels = 1
		}
		return buf
	}
	frames := len(buf.Data) / ch
	mono := make([]int, frames)
	for f := 0; f < frames; f++ {
		sum := 0
		for c := 0; c < ch; c++ {
			sum += buf.Data[f*ch+c]
		}
		mono[f] = sum / ch
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: buf.Format.SampleRate},
		Data:           mono,
		SourceBitDepth: buf.SourceBitDepth,
	}
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, s.buf)
			s.buf = grown
		} else {
			s.buf = s.buf[:end]
		}
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("seekBuffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seekBuffer: negative position")
	}
	s.pos = int(abs)
	return abs, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
