package fw

import (
	"github.com/go-faster/errors"

	"keytone/fw/storage"
)

// SequenceCap is the maximum number of notes in a recording.
const SequenceCap = storage.Cells

var ErrSequenceFull = errors.New("sequence full")

// Sequence is a recording: up to SequenceCap notes.
type Sequence struct {
	notes [SequenceCap]Note
	n     int
}

func (s *Sequence) Len() int { return s.n }

func (s *Sequence) Reset() {
	s.notes = [SequenceCap]Note{}
	s.n = 0
}

// Append adds n at the end of the sequence.
func (s *Sequence) Append(n Note) error {
	if s.n >= SequenceCap {
		return ErrSequenceFull
	}
	s.notes[s.n] = n
	s.n++
	return nil
}

// Notes returns a copy of the notes.
func (s *Sequence) Notes() []Note {
	return append([]Note(nil), s.notes[:s.n]...)
}

// DecodeSequence builds a sequence from stored cells. Decoding stops at the
// first erased cell or invalid code. bad is the index of the invalid code
// decoding stopped on, -1 if none.
func DecodeSequence(cells []byte) (seq Sequence, bad int) {
	bad = -1
	for i, b := range cells {
		if b == storage.Erased {
			break
		}
		n := Note(b)
		if !n.Valid() {
			bad = i
			break
		}
		if seq.Append(n) != nil {
			break
		}
	}
	return seq, bad
}
