// Package wav encodes rendered PCM as a RIFF/WAVE container: interleaved
// 16-bit little-endian stereo with the fixed 44-byte header, plus an
// optional smpl chunk carrying sample-accurate loop points for players that
// honor them.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	wavlib "github.com/youpy/go-wav"
)

const (
	numChannels   = 2
	bitsPerSample = 16

	loopForward = 0 // the only loop type written or accepted
)

var ErrNoData = errors.New("wav: no data chunk")

// LoopPoints is a forward loop in sample frames. End is inclusive, matching
// the smpl chunk convention.
type LoopPoints struct {
	Start uint32
	End   uint32
}

// FromFloat32 converts an interleaved stereo float32 buffer to 16-bit PCM
// with clamping.
func FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Encode produces the plain container: RIFF header, fmt chunk, data chunk.
func Encode(samples []int16, sampleRate int) []byte {
	return encode(samples, sampleRate, nil)
}

// EncodeWithLoop appends an smpl chunk after the data chunk so compliant
// players loop the marked region losslessly; everything else plays the file
// straight through.
func EncodeWithLoop(samples []int16, sampleRate int, loop LoopPoints) []byte {
	return encode(samples, sampleRate, &loop)
}

func encode(samples []int16, sampleRate int, loop *LoopPoints) []byte {
	dataSize := len(samples) * 2
	smplSize := 0
	if loop != nil {
		smplSize = 8 + 36 + 24 // chunk header + smpl fields + one loop
	}
	byteRate := sampleRate * numChannels * 2
	blockAlign := numChannels * 2
	riffSize := 36 + dataSize + smplSize

	out := make([]byte, 44+dataSize+smplSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(riffSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // integer PCM
	binary.LittleEndian.PutUint16(out[22:], numChannels)
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], bitsPerSample)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(s))
	}
	if loop != nil {
		off := 44 + dataSize
		copy(out[off:], []byte("smpl"))
		binary.LittleEndian.PutUint32(out[off+4:], 36+24)
		// manufacturer, product: none
		binary.LittleEndian.PutUint32(out[off+16:], uint32(1e9/float64(sampleRate))) // sample period, ns
		binary.LittleEndian.PutUint32(out[off+20:], 60)                              // MIDI unity note
		binary.LittleEndian.PutUint32(out[off+36:], 1)                               // one loop
		l := off + 44
		binary.LittleEndian.PutUint32(out[l+4:], loopForward)
		binary.LittleEndian.PutUint32(out[l+8:], loop.Start)
		binary.LittleEndian.PutUint32(out[l+12:], loop.End)
	}
	return out
}

// Decode reads a container produced by Encode/EncodeWithLoop back into
// samples. The PCM side goes through the go-wav reader; the smpl chunk, if
// present, is scanned out of the raw chunk list.
func Decode(data []byte) (samples []int16, sampleRate int, loop *LoopPoints, err error) {
	r := wavlib.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return nil, 0, nil, fmt.Errorf("wav: read format: %w", err)
	}
	if format.AudioFormat != wavlib.AudioFormatPCM || format.BitsPerSample != bitsPerSample || format.NumChannels != numChannels {
		return nil, 0, nil, fmt.Errorf("wav: unsupported format %d/%d-bit/%d-channel",
			format.AudioFormat, format.BitsPerSample, format.NumChannels)
	}
	for {
		chunk, err := r.ReadSamples(4096)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, nil, fmt.Errorf("wav: read samples: %w", err)
		}
		for _, s := range chunk {
			samples = append(samples, int16(s.Values[0]), int16(s.Values[1]))
		}
	}
	loop, err = scanLoopChunk(data)
	if err != nil {
		return nil, 0, nil, err
	}
	return samples, int(format.SampleRate), loop, nil
}

// scanLoopChunk walks the RIFF chunk list looking for smpl. Returns nil
// without error when the file has none.
func scanLoopChunk(data []byte) (*LoopPoints, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("wav: not a RIFF/WAVE file")
	}
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4:]))
		body := off + 8
		if body+size > len(data) {
			return nil, fmt.Errorf("wav: truncated %q chunk", id)
		}
		if id == "smpl" {
			if size < 36+24 {
				return nil, fmt.Errorf("wav: smpl chunk too short (%d bytes)", size)
			}
			loops := binary.LittleEndian.Uint32(data[body+28:])
			if loops == 0 {
				return nil, nil
			}
			l := body + 36
			if typ := binary.LittleEndian.Uint32(data[l+4:]); typ != loopForward {
				return nil, fmt.Errorf("wav: unsupported loop type %d", typ)
			}
			return &LoopPoints{
				Start: binary.LittleEndian.Uint32(data[l+8:]),
				End:   binary.LittleEndian.Uint32(data[l+12:]),
			}, nil
		}
		off = body + size + size%2 // chunks are word-aligned
	}
	return nil, nil
}
