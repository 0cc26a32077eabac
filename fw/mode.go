package fw

//go:generate go tool stringer -type=Mode

// Mode is the operating mode of the device.
type Mode uint8

const (
	Play     Mode = iota // keys 1-8 sound notes
	Record               // keys 1-8 sound notes and record them
	Playback             // key D plays the recording back
)

// modeKey returns the mode selected by a mode-switch key.
func modeKey(sym byte) (Mode, bool) {
	switch sym {
	case 'A':
		return Play, true
	case 'B':
		return Record, true
	case 'C':
		return Playback, true
	}
	return 0, false
}

const playbackKey = 'D'

// Note is a note code, as stored: 1 to 8. 0 terminates an in-memory
// sequence.
type Note uint8

const (
	NoteNone Note = 0
	NoteMin  Note = 1
	NoteMax  Note = 8
)

// Pitches holds the frequency in Hz of notes 1 to 8 (C4 to C5).
var Pitches = [NoteMax]uint32{262, 294, 330, 349, 392, 440, 494, 523}

func (n Note) Valid() bool { return n >= NoteMin && n <= NoteMax }

// Pitch returns the frequency of a valid note.
func (n Note) Pitch() uint32 { return Pitches[n-1] }

// NoteKey returns the note played by key sym, keys '1' to '8'.
func NoteKey(sym byte) (Note, bool) {
	if sym < '1' || sym > '8' {
		return NoteNone, false
	}
	return Note(sym - '0'), true
}
