package sampleio

import (
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes the rendered channels as a 16-bit PCM WAV file.
//
// out holds one buffer per channel, all of the same length,
// with the values in the 24-bit range (as produced by a renderer).
func WriteWAV(w io.WriteSeeker, sampleRate int, out [][]int32) error {
	numChannels := len(out)
	if numChannels == 0 {
		return errors.New("no channels to write")
	}
	numFrames := len(out[0])
	for _, ch := range out[1:] {
		if len(ch) != numFrames {
			return errors.New("channel buffers have different lengths")
		}
	}

	enc := wav.NewEncoder(w, sampleRate, 16, numChannels, 1)
	intBuf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, numFrames*numChannels),
		SourceBitDepth: 16,
	}
	for i := range numFrames {
		for j, ch := range out {
			v := int(ch[i] >> 8)
			intBuf.Data[i*numChannels+j] = max(math.MinInt16, min(math.MaxInt16, v))
		}
	}

	if err := enc.Write(intBuf); err != nil {
		return fmt.Errorf("write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish WAV file: %w", err)
	}
	return nil
}
