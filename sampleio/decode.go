package sampleio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/quasilyte/tracker"
)

// DecodeWAV reads an integer PCM WAV file (8, 16, 24 or 32 bits).
func DecodeWAV(r io.ReadSeeker) (*tracker.Sample, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode WAV: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	// 8-bit WAV data is unsigned.
	bias := 0
	if bitDepth == 8 {
		bias = 128
	}
	return intBufferSample(buf, bitDepth, bias)
}

// DecodeAIFF reads an integer PCM AIFF file (8, 16 or 24 bits).
func DecodeAIFF(r io.ReadSeeker) (*tracker.Sample, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not an AIFF file", ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode AIFF: %w", err)
	}
	return intBufferSample(buf, int(dec.BitDepth), 0)
}

func intBufferSample(buf *goaudio.IntBuffer, bitDepth, bias int) (*tracker.Sample, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("%w: no format info", ErrUnsupportedFormat)
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedFormat, bitDepth)
	}
	return newSample(buf.Format.SampleRate, buf.Format.NumChannels, len(buf.Data), func(i int) int32 {
		return scaleInt(buf.Data[i]-bias, bitDepth)
	})
}

// DecodeOgg reads an Ogg Vorbis stream.
func DecodeOgg(r io.Reader) (*tracker.Sample, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode Ogg: %w", err)
	}
	return newSample(format.SampleRate, format.Channels, len(data), func(i int) int32 {
		return scaleFloat(data[i])
	})
}

// DecodeMP3 reads an MP3 stream.
// The decoder always produces stereo frames, so the sample is stereo too.
func DecodeMP3(r io.Reader) (*tracker.Sample, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decode MP3: %w", err)
	}
	// go-mp3 returns 16-bit little-endian PCM bytes (stereo interleaved).
	data, err := io.ReadAll(dec)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("decode MP3: %w", err)
	}
	return newSample(dec.SampleRate(), 2, len(data)/2, func(i int) int32 {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		return scaleInt(int(v), 16)
	})
}
