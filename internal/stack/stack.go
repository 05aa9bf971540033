package stack

import (
	"bytes"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Frame is a single resolved call-stack entry.
type Frame struct {
	// Function is the fully qualified function name.
	Function string
	// File is the source file path.
	File string
	// Line is the line number within File, zero when unknown.
	Line int
}

// Snapshot is the captured call stack of one goroutine.
type Snapshot struct {
	// ID is the runtime-assigned goroutine id.
	ID uint64
	// State is the scheduler state at capture time
	// ("running", "sleep", "chan receive", ...).
	State string
	// Frames lists the stack innermost call first.
	// It is empty when the runtime reported no decodable frames.
	Frames []Frame
	// CreatedBy names the call site that spawned the goroutine, when known.
	CreatedBy *Frame
}

const (
	// initialBufferSize is the starting buffer for runtime traceback text.
	initialBufferSize = 64 << 10
	// initialFrameDepth is the starting program-counter buffer for Current.
	initialFrameDepth = 64
)

// Current captures the call stack of the calling goroutine.
// The capture machinery itself is excluded from the frames.
func Current() Snapshot {
	snap := Snapshot{
		ID:    CurrentID(),
		State: "running",
	}

	pcs := make([]uintptr, initialFrameDepth)

	for {
		// Skip runtime.Callers and Current itself.
		n := runtime.Callers(2, pcs)
		if n < len(pcs) {
			pcs = pcs[:n]
			break
		}

		pcs = make([]uintptr, 2*len(pcs))
	}

	frames := runtime.CallersFrames(pcs)

	for {
		frame, more := frames.Next()
		if frame.PC != 0 {
			snap.Frames = append(snap.Frames, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}

		if !more {
			break
		}
	}

	return snap
}

// All captures the call stacks of every live goroutine, ordered by
// ascending goroutine id.
func All() []Snapshot {
	snaps := parseDump(captureAll())

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].ID < snaps[j].ID
	})

	return snaps
}

// CurrentID returns the runtime id of the calling goroutine.
func CurrentID() uint64 {
	buf := make([]byte, initialFrameDepth)
	n := runtime.Stack(buf, false)

	id, _ := parseHeader(string(buf[:n]))

	return id
}

// WithoutID returns snaps with the goroutine identified by id removed.
// The input slice is not modified.
func WithoutID(snaps []Snapshot, id uint64) []Snapshot {
	out := make([]Snapshot, 0, len(snaps))

	for _, snap := range snaps {
		if snap.ID != id {
			out = append(out, snap)
		}
	}

	return out
}

// captureAll returns the runtime's traceback text for every goroutine,
// growing the buffer until the whole traceback fits.
func captureAll() []byte {
	buf := make([]byte, initialBufferSize)

	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}

		buf = make([]byte, 2*len(buf))
	}
}

// parseDump converts runtime traceback text into snapshots. Blocks that do
// not decode cleanly surface as snapshots with whatever could be read;
// parsing never fails.
func parseDump(buf []byte) []Snapshot {
	var snaps []Snapshot

	for _, block := range bytes.Split(buf, []byte("\n\n")) {
		lines := strings.Split(strings.TrimSpace(string(block)), "\n")
		if len(lines) == 0 || !strings.HasPrefix(lines[0], "goroutine ") {
			continue
		}

		id, state := parseHeader(lines[0])
		snap := Snapshot{ID: id, State: state}

		for i := 1; i < len(lines); i++ {
			line := strings.TrimRight(lines[i], "\r")
			if line == "" {
				continue
			}

			if created, ok := strings.CutPrefix(line, "created by "); ok {
				frame := Frame{Function: trimCreator(created)}
				if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
					frame.File, frame.Line = parseLocation(lines[i+1])
					i++
				}

				snap.CreatedBy = &frame

				continue
			}

			if strings.HasPrefix(line, "\t") {
				// Location or annotation line without a preceding
				// function line ("stack unavailable" and friends).
				continue
			}

			frame := Frame{Function: trimArguments(line)}
			if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
				frame.File, frame.Line = parseLocation(lines[i+1])
				i++
			}

			snap.Frames = append(snap.Frames, frame)
		}

		snaps = append(snaps, snap)
	}

	return snaps
}

// parseHeader extracts the goroutine id and state from a traceback header
// such as "goroutine 12 [chan receive, 2 minutes]:".
func parseHeader(text string) (uint64, string) {
	if end := strings.IndexByte(text, '\n'); end >= 0 {
		text = text[:end]
	}

	text = strings.TrimPrefix(strings.TrimSpace(text), "goroutine ")

	idEnd := strings.IndexByte(text, ' ')
	if idEnd < 0 {
		return 0, ""
	}

	id, err := strconv.ParseUint(text[:idEnd], 10, 64)
	if err != nil {
		return 0, ""
	}

	stateStart := strings.IndexByte(text, '[')
	stateEnd := strings.LastIndexByte(text, ']')

	if stateStart < 0 || stateEnd <= stateStart {
		return id, ""
	}

	return id, text[stateStart+1 : stateEnd]
}

// trimArguments strips the argument list from a traceback function line,
// turning "main.work(0xc00001a0b0, 0x1)" into "main.work".
func trimArguments(line string) string {
	line = strings.TrimSpace(line)

	if i := strings.LastIndexByte(line, '('); i > 0 {
		return line[:i]
	}

	return line
}

// trimCreator strips the trailing "in goroutine N" clause from the text
// after "created by ".
func trimCreator(text string) string {
	text = strings.TrimSpace(text)

	if i := strings.Index(text, " in goroutine "); i > 0 {
		return text[:i]
	}

	return text
}

// parseLocation decodes a tab-indented "\t/path/file.go:123 +0x1f" line.
func parseLocation(line string) (string, int) {
	line = strings.TrimSpace(line)

	if i := strings.IndexByte(line, ' '); i > 0 {
		line = line[:i]
	}

	colon := strings.LastIndexByte(line, ':')
	if colon <= 0 {
		return line, 0
	}

	number, err := strconv.Atoi(line[colon+1:])
	if err != nil {
		return line, 0
	}

	return line[:colon], number
}
