// Package wav serializes captured mono samples into a RIFF/WAVE container and
// reads such containers back.
//
// The encoder output is the externally consumable recording artifact and is
// byte-exact: a 44-byte canonical header followed by 16-bit little-endian PCM.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// HeaderSize is the size of the canonical PCM header written by Encode.
	HeaderSize = 44

	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
	formatPCM      = 1
	fullScale      = 32767
)

// ErrInvalidWAV is returned by Decode for data that is not a 16-bit PCM WAV.
var ErrInvalidWAV = errors.New("invalid wav data")

// Encode returns a mono 16-bit PCM WAV containing samples at sampleRate.
// Samples are clamped to [-1, 1] and scaled by round(s * 32767).
func Encode(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * bytesPerSample
	buf := make([]byte, HeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*bytesPerSample))
	binary.LittleEndian.PutUint16(buf[32:34], bytesPerSample)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	putPCM16(buf[HeaderSize:], samples)

	return buf
}

// EncodePCM16 returns the raw 16-bit little-endian PCM payload for samples,
// without a header. Recognizers that consume LINEAR16 audio take this form.
func EncodePCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*bytesPerSample)
	putPCM16(buf, samples)
	return buf
}

func putPCM16(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(quantize(s)))
	}
}

// quantize clamps s to [-1, 1] and scales it to a signed 16-bit value.
func quantize(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	} else if math.IsNaN(v) {
		v = 0
	}
	return int16(math.Round(v * fullScale))
}

// Header describes the fmt chunk of a decoded WAV.
type Header struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Decode parses a 16-bit PCM WAV and returns its samples scaled back to
// [-1, 1] together with the sample rate. Multi-channel audio is downmixed to
// mono by averaging. Unknown chunks (LIST, fact, ...) are skipped.
func Decode(data []byte) ([]float32, int, error) {
	h, pcm, err := parse(data)
	if err != nil {
		return nil, 0, err
	}

	channels := int(h.NumChannels)
	frames := len(pcm) / (channels * bytesPerSample)
	samples := make([]float32, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			off := (i*channels + c) * bytesPerSample
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		samples[i] = float32(float64(sum) / float64(channels) / fullScale)
	}
	return samples, int(h.SampleRate), nil
}

// ParseHeader returns the fmt chunk of data without decoding the samples.
func ParseHeader(data []byte) (Header, error) {
	h, _, err := parse(data)
	return h, err
}

func parse(data []byte) (Header, []byte, error) {
	var h Header
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return h, nil, fmt.Errorf("%w: missing RIFF/WAVE signature", ErrInvalidWAV)
	}

	var (
		haveFmt bool
		pcm     []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) {
			if id != "data" {
				return h, nil, fmt.Errorf("%w: chunk %q overruns buffer", ErrInvalidWAV, id)
			}
			// Streamed recordings often carry a placeholder data size.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return h, nil, fmt.Errorf("%w: fmt chunk too short", ErrInvalidWAV)
			}
			chunk := data[body:end]
			h.AudioFormat = binary.LittleEndian.Uint16(chunk[0:2])
			h.NumChannels = binary.LittleEndian.Uint16(chunk[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			h.ByteRate = binary.LittleEndian.Uint32(chunk[8:12])
			h.BlockAlign = binary.LittleEndian.Uint16(chunk[12:14])
			h.BitsPerSample = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			pcm = data[body:end]
			h.DataSize = uint32(len(pcm))
		}

		// Chunks are word aligned.
		off = end + size%2
		if pcm != nil && haveFmt {
			break
		}
	}

	switch {
	case !haveFmt:
		return h, nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	case pcm == nil:
		return h, nil, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	case h.AudioFormat != formatPCM:
		return h, nil, fmt.Errorf("%w: unsupported audio format %d", ErrInvalidWAV, h.AudioFormat)
	case h.BitsPerSample != bitsPerSample:
		return h, nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, h.BitsPerSample)
	case h.NumChannels == 0 || h.SampleRate == 0:
		return h, nil, fmt.Errorf("%w: zero channels or sample rate", ErrInvalidWAV)
	}
	return h, pcm, nil
}
