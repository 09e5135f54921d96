package tts

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/go-audio/audio"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
)

// envelope keys carrying audio, in lookup order.
var audioKeys = []string{"audio", "audio_data"}

// Normalize turns whatever the synthesis server returned into one mono
// 16-bit buffer. Accepted shapes:
//   - a WAV container (16-bit PCM or 32-bit float)
//   - raw little-endian 16-bit PCM when the content type is audio/pcm
//   - a JSON object with "audio" or "audio_data" holding base64 (WAV or raw
//     PCM16) or an array of float samples, plus an optional "sample_rate"
//
// Everything else is KindInvalidResponse.
func Normalize(body []byte, contentType string, defaultRate int) (*audio.IntBuffer, error) {
	if len(body) == 0 {
		return nil, newError(KindInvalidResponse, errors.New("empty response body"))
	}
	if isRIFF(body) {
		return decodeWAV(body)
	}

	mediaType, params, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "audio/pcm":
		rate := defaultRate
		if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
			rate = r
		}
		buf, err := artifact.PCM16FromBytes(body, rate)
		if err != nil {
			return nil, newError(KindInvalidResponse, err)
		}
		return buf, nil
	}

	trimmed := bytes.TrimSpace(body)
	if mediaType == "application/json" || (len(trimmed) > 0 && trimmed[0] == '{') {
		return normalizeEnvelope(trimmed, defaultRate)
	}
	return nil, newError(KindInvalidResponse, fmt.Errorf("unrecognized payload (content-type %q)", contentType))
}

func normalizeEnvelope(body []byte, defaultRate int) (*audio.IntBuffer, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newError(KindInvalidResponse, fmt.Errorf("decode envelope: %w", err))
	}

	rate := defaultRate
	if raw, ok := env["sample_rate"]; ok {
		var r float64
		if err := json.Unmarshal(raw, &r); err == nil && r > 0 {
			rate = int(r)
		}
	}

	var payload json.RawMessage
	for _, k := range audioKeys {
		if v, ok := env[k]; ok {
			payload = v
			break
		}
	}
	if payload == nil {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		return nil, newError(KindInvalidResponse, fmt.Errorf("no audio in envelope (keys: %s)", strings.Join(keys, ",")))
	}

	var encoded string
	if err := json.Unmarshal(payload, &encoded); err == nil {
		raw, err := decodeBase64(encoded)
		if err != nil {
			return nil, newError(KindInvalidResponse, fmt.Errorf("decode base64 audio: %w", err))
		}
		if len(raw) == 0 {
			return nil, newError(KindInvalidResponse, errors.New("empty audio in envelope"))
		}
		if isRIFF(raw) {
			return decodeWAV(raw)
		}
		buf, err := artifact.PCM16FromBytes(raw, rate)
		if err != nil {
			return nil, newError(KindInvalidResponse, err)
		}
		return buf, nil
	}

	var samples []float64
	if err := json.Unmarshal(payload, &samples); err == nil && len(samples) > 0 {
		return &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
			Data:           artifact.FloatsToPCM16(samples),
			SourceBitDepth: artifact.BitDepth,
		}, nil
	}
	return nil, newError(KindInvalidResponse, errors.New("audio field is neither base64 nor a sample array"))
}

func decodeWAV(b []byte) (*audio.IntBuffer, error) {
	buf, err := artifact.DecodeWAV(b)
	switch {
	case errors.Is(err, artifact.ErrUnsupportedFormat):
		return nil, newError(KindUnsupportedFormat, err)
	case err != nil:
		return nil, newError(KindInvalidResponse, err)
	}
	return buf, nil
}

func decodeBase64(s string) ([]byte, error) {
	// Some servers send a data URI.
	if i := strings.Index(s, ";base64,"); i >= 0 {
		s = s[i+len(";base64,"):]
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func isRIFF(b []byte) bool {
	return len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}
