package stack

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// failingWriter always fails, for exercising the dump's only error path.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("sink closed")
}

// TestWriteDump checks the rendered layout line by line.
func TestWriteDump(t *testing.T) {
	t.Parallel()

	snaps := []Snapshot{
		{
			ID:    3,
			State: "sleep",
			Frames: []Frame{
				{Function: "main.work", File: "/src/main.go", Line: 42},
			},
		},
		{ID: 9},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDump(&buf, "timed out after 1s", snaps))

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 8)

	require.Len(t, lines[0], dumpWidth)
	require.True(t, strings.HasPrefix(lines[0], "+"))
	require.Contains(t, lines[0], " timed out after 1s ")

	require.Len(t, lines[1], dumpWidth)
	require.True(t, strings.HasPrefix(lines[1], "~"))
	require.Contains(t, lines[1], " goroutine 3 [sleep] ")

	require.Equal(t, "main.work(...)", lines[2])
	require.Equal(t, "\t/src/main.go:42", lines[3])

	require.Contains(t, lines[4], " goroutine 9 [unknown] ")
	require.Equal(t, "<no stack frames captured>", lines[5])

	require.Equal(t, lines[0], lines[6])
	require.Empty(t, lines[7])
}

// TestWriteDumpCreatedBy checks the creator clause and unknown fallbacks.
func TestWriteDumpCreatedBy(t *testing.T) {
	t.Parallel()

	creator := Frame{Function: "main.spawn", File: "/src/main.go", Line: 30}
	snaps := []Snapshot{
		{
			ID:        5,
			State:     "chan receive",
			Frames:    []Frame{{}, {Function: "main.wait"}},
			CreatedBy: &creator,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDump(&buf, "dump", snaps))

	out := buf.String()
	require.Contains(t, out, "<unknown function>\n\t<unknown file>\n")
	require.Contains(t, out, "main.wait(...)\n\t<unknown file>\n")
	require.Contains(t, out, "created by main.spawn\n\t/src/main.go:30\n")
}

// TestWriteDumpLongTitle checks a title wider than the banner still renders
// with a minimal filler margin.
func TestWriteDumpLongTitle(t *testing.T) {
	t.Parallel()

	title := strings.Repeat("x", dumpWidth+10)

	var buf bytes.Buffer
	require.NoError(t, WriteDump(&buf, title, nil))

	lines := strings.Split(buf.String(), "\n")
	require.Contains(t, lines[0], title)
	require.True(t, strings.HasPrefix(lines[0], "++"))
	require.True(t, strings.HasSuffix(lines[0], "++"))
}

// TestWriteDumpSinkError checks a failing sink surfaces as a wrapped error.
func TestWriteDumpSinkError(t *testing.T) {
	t.Parallel()

	err := WriteDump(failingWriter{}, "dump", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "write dump")
}

// TestWriteDumpLive renders a real capture and spot-checks its content.
func TestWriteDumpLive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteDump(&buf, "live", All()))

	out := buf.String()
	require.Contains(t, out, "goroutine ")
	require.Contains(t, out, "TestWriteDumpLive")
	require.Contains(t, out, ".go:")
}
