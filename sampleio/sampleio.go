// Package sampleio converts audio files into tracker samples
// and writes the rendered PCM into WAV files.
//
// Supported input formats: WAV, AIFF, Ogg Vorbis and MP3.
package sampleio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/quasilyte/tracker"
)

var (
	// ErrUnsupportedFormat is returned for unknown formats and unsupported layouts.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrEmptySample is returned when a file has no audio frames.
	ErrEmptySample = errors.New("empty sample")
)

type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatAIFF
	FormatOgg
	FormatMP3
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "WAV"
	case FormatAIFF:
		return "AIFF"
	case FormatOgg:
		return "Ogg"
	case FormatMP3:
		return "MP3"
	default:
		return "Unknown"
	}
}

// FormatFromPath detects the format by the file extension.
func FormatFromPath(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".aif", ".aiff":
		return FormatAIFF
	case ".ogg", ".oga":
		return FormatOgg
	case ".mp3":
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Decode reads the whole audio stream and converts it into a sample.
//
// The sample plays at its original rate on the middle C.
// Stereo files produce stereo samples; extra channels are dropped.
func Decode(r io.Reader, format Format) (*tracker.Sample, error) {
	switch format {
	case FormatWAV:
		return DecodeWAV(readSeeker(r))
	case FormatAIFF:
		return DecodeAIFF(readSeeker(r))
	case FormatOgg:
		return DecodeOgg(r)
	case FormatMP3:
		return DecodeMP3(r)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// readSeeker adapts r for the decoders that need to seek.
// The reader is loaded into memory if it can't seek on its own.
func readSeeker(r io.Reader) io.ReadSeeker {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return &errReader{err: err}
	}
	return bytes.NewReader(data)
}

type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }
func (r *errReader) Seek(int64, int) (int64, error) { return 0, r.err }

// newSample builds a sample from interleaved frames.
// conv maps the i-th interleaved value to the 24-bit range.
func newSample(sampleRate, numChannels, numValues int, conv func(i int) int32) (*tracker.Sample, error) {
	if numChannels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedFormat, numChannels, sampleRate)
	}
	numFrames := numValues / numChannels
	if numFrames == 0 {
		return nil, ErrEmptySample
	}

	s := &tracker.Sample{
		Flags:         tracker.SampleExists,
		Length:        numFrames,
		C5Speed:       sampleRate,
		DefaultVolume: 64,
		GlobalVolume:  64,
		Left:          make([]int32, numFrames),
	}
	if numChannels >= 2 {
		s.Flags |= tracker.SampleStereo
		s.Right = make([]int32, numFrames)
	}

	for i := range numFrames {
		s.Left[i] = conv(i * numChannels)
		if s.Right != nil {
			s.Right[i] = conv(i*numChannels + 1)
		}
	}
	return s, nil
}

// scaleInt maps a signed PCM value of the given bit depth to the 24-bit range.
func scaleInt(v, bitDepth int) int32 {
	if bitDepth <= 24 {
		return int32(v << (24 - bitDepth))
	}
	return int32(v >> (bitDepth - 24))
}

// scaleFloat maps a [-1, 1] value to the 24-bit range.
func scaleFloat(v float32) int32 {
	v = max(-1, min(1, v))
	return int32(v * 8388607)
}
