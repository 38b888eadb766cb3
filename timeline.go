package tracker

import (
	"time"
)

// checkpointInterval is a time between the timeline checkpoints (30 seconds).
const checkpointInterval = 30 * 65536

type checkpoint struct {
	// time is in 1/65536 of a second.
	time     int64
	renderer *Renderer
}

// Timeline holds the song playback snapshots taken every 30 seconds.
// It's used to measure the song length and to start a playback
// at an arbitrary position without replaying the whole song.
//
// A timeline is safe for concurrent use: Start clones the snapshots.
type Timeline struct {
	config      Config
	checkpoints []checkpoint
	length      int64
}

// BuildTimeline plays the song silently until it loops or ends.
//
// The config is used for every renderer created by Start.
func BuildTimeline(song *Song, config Config) (*Timeline, error) {
	callbacks := Callbacks{
		Loop:        Terminate,
		XMSpeedZero: Terminate,
	}
	r, err := NewRenderer(song, config, callbacks)
	if err != nil {
		return nil, err
	}

	tl := &Timeline{config: r.config}
	cp := checkpoint{time: 0, renderer: r}
	tl.checkpoints = append(tl.checkpoints, cp)
	for {
		next := cp.renderer.Clone()
		n := next.GetSamples(0, 1.0, checkpointInterval, nil)
		if n < checkpointInterval {
			tl.length = cp.time + int64(n)
			break
		}
		cp = checkpoint{time: cp.time + checkpointInterval, renderer: next}
		tl.checkpoints = append(tl.checkpoints, cp)
	}

	r.config.Logger.Debug("timeline is built",
		"checkpoints", len(tl.checkpoints),
		"length", tl.Duration())
	return tl, nil
}

// Length returns the song length (up to the first loop) in 1/65536 of a second.
func (tl *Timeline) Length() int64 { return tl.length }

// Duration returns the song length as a time.Duration.
func (tl *Timeline) Duration() time.Duration {
	return time.Duration(tl.length * int64(time.Second) / 65536)
}

// Start returns a renderer positioned at pos (in 1/65536 of a second).
//
// If a callback stops the playback before pos is reached,
// the returned renderer is already finished.
func (tl *Timeline) Start(pos int64, callbacks Callbacks) *Renderer {
	pos = max(pos, 0)

	cp := tl.checkpoints[0]
	for _, next := range tl.checkpoints[1:] {
		if next.time >= pos {
			break
		}
		cp = next
	}

	r := cp.renderer.cloneWith(tl.config.Channels, callbacks)
	r.elapsed = pos << 16
	if r.Ended() {
		return r
	}

	pos -= cp.time
	for r.timeLeft < pos {
		r.render(0, 1.0, 0, int(r.timeLeft), nil)
		pos -= r.timeLeft
		r.timeLeft = 0
		if r.processTick() {
			r.finish()
			return r
		}
	}
	r.render(0, 1.0, 0, int(pos), nil)
	r.timeLeft -= pos

	return r
}
