package xmfile

// maxSlabChunks limits the memory a slab keeps between the parser runs.
// Allocations that don't fit are served by the Go allocator.
const maxSlabChunks = 6

// slab hands out subslices of a few big chunks.
// Reset makes the whole memory available again without freeing it,
// so the slices returned before a Reset are invalidated.
//
// The returned slices are not zeroed after a Reset.
type slab[T any] struct {
	chunks    [][]T
	chunkSize int

	// current is an index of the chunk being filled; used is its fill level.
	current int
	used    int
}

func newSlab[T any](chunkSize int) slab[T] {
	return slab[T]{
		chunks:    make([][]T, 0, maxSlabChunks),
		chunkSize: chunkSize,
	}
}

func (s *slab[T]) Reset() {
	s.current = 0
	s.used = 0
}

func (s *slab[T]) Alloc(n int) []T {
	if n > s.chunkSize {
		return make([]T, n)
	}

	for s.current < len(s.chunks) {
		if s.chunkSize-s.used >= n {
			b := s.chunks[s.current][s.used : s.used+n : s.used+n]
			s.used += n
			return b
		}
		s.current++
		s.used = 0
	}

	if len(s.chunks) == maxSlabChunks {
		return make([]T, n)
	}
	s.chunks = append(s.chunks, make([]T, s.chunkSize))
	s.used = n
	return s.chunks[s.current][:n:n]
}
