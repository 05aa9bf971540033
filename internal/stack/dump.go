package stack

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// dumpWidth is the width of banner and goroutine separator lines.
	dumpWidth = 80
	// unknownFunction replaces a frame whose function is not resolved.
	unknownFunction = "<unknown function>"
	// unknownFile replaces a frame whose source file is not resolved.
	unknownFile = "<unknown file>"
	// emptyStack marks a snapshot with no decodable frames.
	emptyStack = "<no stack frames captured>"
)

// WriteDump renders snaps as plain text: an opening banner carrying title,
// one block per goroutine with a separator line naming it followed by its
// frames, and a closing banner. The dump is built in memory and written
// with a single Write so concurrent output cannot interleave with it.
func WriteDump(w io.Writer, title string, snaps []Snapshot) error {
	var b strings.Builder

	writeTitle(&b, title, '+')

	for _, snap := range snaps {
		writeTitle(&b, snap.header(), '~')
		snap.writeFrames(&b)
	}

	writeTitle(&b, title, '+')

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}

	return nil
}

// header renders the goroutine identity line used as a block separator.
func (s Snapshot) header() string {
	state := s.State
	if state == "" {
		state = "unknown"
	}

	return fmt.Sprintf("goroutine %d [%s]", s.ID, state)
}

// writeFrames renders the snapshot's frames innermost first, in the
// "function\n\tfile:line" layout of runtime tracebacks.
func (s Snapshot) writeFrames(b *strings.Builder) {
	if len(s.Frames) == 0 && s.CreatedBy == nil {
		b.WriteString(emptyStack)
		b.WriteByte('\n')

		return
	}

	for _, frame := range s.Frames {
		if frame.Function == "" {
			b.WriteString(unknownFunction)
		} else {
			b.WriteString(frame.Function)
			b.WriteString("(...)")
		}

		b.WriteByte('\n')
		writeLocation(b, frame)
	}

	if s.CreatedBy != nil {
		b.WriteString("created by ")

		if s.CreatedBy.Function == "" {
			b.WriteString(unknownFunction)
		} else {
			b.WriteString(s.CreatedBy.Function)
		}

		b.WriteByte('\n')
		writeLocation(b, *s.CreatedBy)
	}
}

// writeLocation renders the tab-indented source location of a frame.
func writeLocation(b *strings.Builder, frame Frame) {
	b.WriteByte('\t')

	if frame.File == "" {
		b.WriteString(unknownFile)
	} else {
		b.WriteString(frame.File)

		if frame.Line > 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(frame.Line))
		}
	}

	b.WriteByte('\n')
}

// writeTitle writes text centered in a line of filler characters.
func writeTitle(b *strings.Builder, text string, filler rune) {
	if text == "" {
		b.WriteString(strings.Repeat(string(filler), dumpWidth))
		b.WriteByte('\n')

		return
	}

	fill := dumpWidth - len(text) - 2
	if fill < 4 {
		fill = 4
	}

	left := fill / 2
	right := fill - left

	b.WriteString(strings.Repeat(string(filler), left))
	b.WriteByte(' ')
	b.WriteString(text)
	b.WriteByte(' ')
	b.WriteString(strings.Repeat(string(filler), right))
	b.WriteByte('\n')
}
