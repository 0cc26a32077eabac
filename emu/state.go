package emu

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-faster/jx"

	"keytone/fw"
	"keytone/hw/tm4c"
)

// State is a snapshot of the simulated board.
type State struct {
	Mode     fw.Mode
	Cursor   int
	Sequence []fw.Note
	Playing  fw.Note // fw.NoteNone when silent
	Halted   bool
	Err      string
	LEDs     uint8 // port D lines driven high
	Buzzer   tm4c.PWMOutput
	Uptime   time.Duration
}

func (st State) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mode:     %s\n", st.Mode)
	fmt.Fprintf(&sb, "cursor:   %d\n", st.Cursor)
	fmt.Fprintf(&sb, "sequence: %s\n", formatNotes(st.Sequence))
	fmt.Fprintf(&sb, "leds:     %08b\n", st.LEDs)
	if st.Buzzer.On {
		fmt.Fprintf(&sb, "buzzer:   %.1f Hz, duty %.0f%%\n", st.Buzzer.Freq, st.Buzzer.Duty*100)
	} else {
		fmt.Fprintf(&sb, "buzzer:   off\n")
	}
	if st.Halted {
		fmt.Fprintf(&sb, "halted:   %s\n", st.Err)
	}
	fmt.Fprintf(&sb, "uptime:   %v\n", st.Uptime.Truncate(time.Millisecond))
	return sb.String()
}

func formatNotes(notes []fw.Note) string {
	if len(notes) == 0 {
		return "(empty)"
	}
	s := make([]string, len(notes))
	for i, n := range notes {
		s[i] = fmt.Sprint(uint8(n))
	}
	return strings.Join(s, " ")
}

func encodeNotes(e *jx.Encoder, notes []fw.Note) {
	e.ArrStart()
	for _, n := range notes {
		e.Int(int(n))
	}
	e.ArrEnd()
}

// EncodeJSON writes st as a JSON object.
func (st State) EncodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("mode")
	e.Str(st.Mode.String())
	e.FieldStart("cursor")
	e.Int(st.Cursor)
	e.FieldStart("sequence")
	encodeNotes(e, st.Sequence)
	e.FieldStart("playing")
	if st.Playing.Valid() {
		e.Int(int(st.Playing))
	} else {
		e.Null()
	}
	e.FieldStart("leds")
	e.Int(int(st.LEDs))
	e.FieldStart("buzzer")
	e.ObjStart()
	e.FieldStart("on")
	e.Bool(st.Buzzer.On)
	e.FieldStart("freq")
	e.Float64(st.Buzzer.Freq)
	e.FieldStart("duty")
	e.Float64(st.Buzzer.Duty)
	e.ObjEnd()
	e.FieldStart("halted")
	e.Bool(st.Halted)
	if st.Err != "" {
		e.FieldStart("error")
		e.Str(st.Err)
	}
	e.FieldStart("uptime_ms")
	e.Int(int(st.Uptime.Milliseconds()))
	e.ObjEnd()
}

// EncodeJSON writes rec as a JSON object.
func (rec *Recording) EncodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("cells")
	e.ArrStart()
	for _, b := range rec.Cells {
		e.Int(int(b))
	}
	e.ArrEnd()
	e.FieldStart("notes")
	encodeNotes(e, rec.Notes)
	e.FieldStart("pitches")
	e.ArrStart()
	for _, n := range rec.Notes {
		e.Int(int(n.Pitch()))
	}
	e.ArrEnd()
	if rec.Bad >= 0 {
		e.FieldStart("invalid_cell")
		e.Int(rec.Bad)
	}
	e.ObjEnd()
}

// WriteJSON writes the indented JSON encoding of v to w, followed by a
// newline.
func WriteJSON(w io.Writer, v interface{ EncodeJSON(*jx.Encoder) }) error {
	var e jx.Encoder
	e.SetIdent(2)
	v.EncodeJSON(&e)
	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}

// Dump writes a human readable description of rec to w.
func (rec *Recording) Dump(w io.Writer) error {
	var sb strings.Builder
	for i, b := range rec.Cells {
		if i%16 == 0 {
			if i > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%04X:", i)
		}
		fmt.Fprintf(&sb, " %02X", b)
	}
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "notes: %s\n", formatNotes(rec.Notes))
	if rec.Bad >= 0 {
		fmt.Fprintf(&sb, "invalid code 0x%02X at cell %d\n", rec.Cells[rec.Bad], rec.Bad)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
