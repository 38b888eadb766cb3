package xmfile

import (
	"fmt"
)

// ParseError describes a malformed XM file.
type ParseError struct {
	// Stage is a path to the failed part of the file,
	// like "instrument[2].sample[0]". It can be empty.
	Stage string

	Message string

	// Offset is a data position where the error was detected.
	Offset int
}

func (e *ParseError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s (offset=%d)", e.Message, e.Offset)
	}
	return fmt.Sprintf("%s: %s (offset=%d)", e.Stage, e.Message, e.Offset)
}
