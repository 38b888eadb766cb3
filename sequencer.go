package tracker

// processTick advances the playback by one tick.
// It returns true if a callback stopped the playback.
func (r *Renderer) processTick() bool {
	runRowTick := false
	if r.speed != 0 {
		r.tick--
		runRowTick = r.tick == 0
	}

	if runRowTick {
		stop, frozen := r.rowTick()
		if stop {
			return true
		}
		if frozen {
			r.updateEffects()
			r.updateTickCounts()
		}
	} else {
		r.updateEffects()
		r.updateTickCounts()
	}

	r.processAllVoices()
	r.timeLeft += tickTimeDividend / int64(r.tempo)
	return false
}

// rowTick handles the first tick of a row (or a pattern delay repetition).
//
// frozen is reported when the playback looped while the speed is 0:
// the row is not played, only the tick effects run.
func (r *Renderer) rowTick() (stop, frozen bool) {
	r.resetTickCounts()
	r.tick = r.speed
	r.rowCount--
	if r.rowCount != 0 {
		// Pattern delay: the row effects are re-applied, the notes are not.
		entries := r.rowEntries()
		for i := range entries {
			r.processEffects(&entries[i])
		}
		r.updateEffects()
		return false, false
	}

	r.rowCount = 1
	if r.patLoopRow >= 0 {
		r.processRow = r.patLoopRow - 1
		r.row = r.processRow
		r.patLoopRow = -1
	}
	r.processRow++

	if r.processRow >= r.numRows {
		r.processRow = r.breakRow
		r.breakRow = 0

		patternIndex, ok := r.nextOrder()
		if !ok {
			r.config.Logger.Debug("order list has no playable entries")
			return true, false
		}
		r.selectPattern(patternIndex)
		if r.processRow >= r.numRows {
			r.processRow = 0
		}

		if r.order >= r.processOrder {
			if r.callbacks.loop() {
				r.config.Logger.Debug("playback stopped by the loop callback", "order", r.processOrder)
				return true, false
			}
			if r.speed == 0 {
				return false, true
			}
		}
		r.order = r.processOrder
		r.row = r.processRow
	} else {
		if r.row >= 0 {
			r.row++
		} else {
			r.row = 0
		}
	}

	return r.playRow(), false
}

// playRow processes all entries of the current row.
// It returns true if a callback stopped the playback.
func (r *Renderer) playRow() bool {
	r.resetEffects()
	entries := r.rowEntries()
	for i := range entries {
		r.updatePatternVariables(&entries[i])
	}
	for i := range entries {
		if r.processEntry(&entries[i]) {
			return true
		}
	}
	if !r.song.Flags.Contains(SongOldEffects) {
		r.updateSmoothEffects()
	}
	return false
}

// nextOrder moves processOrder to the next order that refers to a pattern.
// Order skip entries are ignored, the end marker restarts the song.
func (r *Renderer) nextOrder() (int, bool) {
	song := r.song
	// Every order is visited at most twice before a pattern is found.
	for attempts := 2*len(song.Orders) + 2; attempts > 0; attempts-- {
		r.processOrder++
		if r.processOrder >= len(song.Orders) {
			r.processOrder = song.RestartPosition
			if r.processOrder < 0 || r.processOrder >= len(song.Orders) {
				r.processOrder = -1
				continue
			}
		}
		n := int(song.Orders[r.processOrder])
		if n < len(song.Patterns) {
			return n, true
		}
		if uint8(n) == OrderEnd {
			r.processOrder = -1
		}
	}
	return 0, false
}

func (r *Renderer) resetTickCounts() {
	for i := range r.channels {
		ch := &r.channels[i]
		ch.noteCutCount = 0
		ch.noteDelayCount = 0
	}
}

func (r *Renderer) resetEffects() {
	r.globalVolslide = 0
	r.tempoSlide = 0
	for i := range r.channels {
		r.channels[i].resetEffects()
	}
}

// updatePatternVariables applies the row-level S commands (pattern loop
// and pattern delay) before any entry of the row is processed.
func (r *Renderer) updatePatternVariables(e *Entry) {
	if !e.Mask.Contains(EntryEffect) || e.Effect != EffectS {
		return
	}
	ch := &r.channels[e.Channel]
	v := e.EffectValue
	if v == 0 {
		v = ch.lastS
	}
	ch.lastS = v

	x := int(v & 15)
	switch SCommand(v >> 4) {
	case SPatternLoop:
		switch {
		case x == 0:
			ch.patLoopRow = r.processRow
		case ch.patLoopCount == 0:
			ch.patLoopCount = x
			r.patLoopRow = ch.patLoopRow
		default:
			ch.patLoopCount--
			if ch.patLoopCount != 0 {
				r.patLoopRow = ch.patLoopRow
			} else if !r.song.wasXM() {
				ch.patLoopRow = r.processRow + 1
			}
		}
	case SPatternDelay:
		r.rowCount = 1 + x
	}
}

// processEntry returns true if a callback stopped the playback.
func (r *Renderer) processEntry(e *Entry) bool {
	ch := &r.channels[e.Channel]
	if e.Mask.Contains(EntryNote) {
		ch.note = int(e.Note)
	}

	if e.Mask.Contains(EntryEffect) && e.Effect == EffectS {
		// lastS is already resolved by updatePatternVariables.
		if SCommand(ch.lastS>>4) == SNoteDelay {
			ch.noteDelayCount = int(ch.lastS & 15)
			if ch.noteDelayCount == 0 {
				ch.noteDelayCount = 1
			}
			ch.noteDelayEntry = e
			return false
		}
	}

	return r.processNoteData(e)
}

func (r *Renderer) processNoteData(e *Entry) bool {
	ch := &r.channels[e.Channel]
	if !r.dialect.noteData(r, ch, e) {
		return false
	}
	if e.Mask.Contains(EntryNote) {
		r.callbacks.note(e.Channel, e, ch.volume)
	}
	return r.processEffects(e)
}

func (r *Renderer) updateTickCounts() {
	for i := range r.channels {
		ch := &r.channels[i]
		switch {
		case ch.noteCutCount != 0:
			ch.noteCutCount--
			if ch.noteCutCount == 0 {
				r.dialect.cutNote(ch)
			}
		case ch.noteDelayCount != 0:
			ch.noteDelayCount--
			if ch.noteDelayCount == 0 {
				// A delayed note can't set the speed to 0,
				// so the stop result is irrelevant here.
				r.processNoteData(ch.noteDelayEntry)
			}
		}
	}
}
