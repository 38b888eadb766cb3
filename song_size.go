package tracker

import (
	"unsafe"
)

// SongSize approximates the song memory usage in bytes.
// It only counts the data that grows with the song contents.
func SongSize(s *Song) uint {
	memoryUsage := int(unsafe.Sizeof(*s))
	for _, smp := range s.Samples {
		memoryUsage += int(unsafe.Sizeof(smp))
		memoryUsage += (len(smp.Left) + len(smp.Right)) * 4
	}
	memoryUsage += len(s.Instruments) * int(unsafe.Sizeof(Instrument{}))
	for i := range s.Instruments {
		inst := &s.Instruments[i]
		numNodes := len(inst.VolumeEnvelope.Nodes) + len(inst.PanEnvelope.Nodes) + len(inst.PitchEnvelope.Nodes)
		memoryUsage += numNodes * int(unsafe.Sizeof(EnvelopeNode{}))
	}
	for _, p := range s.Patterns {
		memoryUsage += int(unsafe.Sizeof(p))
		for _, row := range p.Rows {
			memoryUsage += int(unsafe.Sizeof(row))
			memoryUsage += len(row) * int(unsafe.Sizeof(Entry{}))
		}
	}
	memoryUsage += len(s.Orders)

	return uint(memoryUsage)
}
