// Package patch applies verified in-place text substitutions to source
// files. It is not transactional; it relies on the store's notion of
// "current" findings being accurate and protects itself by matching the
// expected old text exactly before touching anything.
package patch

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	auditerrors "srcaudit/internal/errors"
)

// LineEditor holds one in-memory copy of a text file's lines. Mutations
// stay in memory until an explicit Write.
type LineEditor struct {
	lines []string
}

// Read loads the file at path, discarding any previously loaded content
// and patches.
func (e *LineEditor) Read(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // Read-only handle

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	e.lines = lines
	return nil
}

// LineCount returns the number of lines in the file. Zero if no file has
// been read.
func (e *LineEditor) LineCount() int {
	return len(e.lines)
}

// Line returns the line, or an empty string if it does not exist.
// Counting starts at one.
func (e *LineEditor) Line(number int) string {
	if number < 1 || number > len(e.lines) {
		return ""
	}
	return e.lines[number-1]
}

// Patch replaces old with new at the given one-based line and column. It
// fails without mutating anything if the position is out of range or the
// live text at that column does not equal old character for character —
// the file may have drifted since analysis.
func (e *LineEditor) Patch(line, column int, old, new string) error {
	if line < 1 || line > len(e.lines) {
		return auditerrors.Newf(auditerrors.PatchMismatch, nil, "line %d out of range", line)
	}
	text := e.lines[line-1]
	if column < 1 || column > len(text) {
		return auditerrors.Newf(auditerrors.PatchMismatch, nil,
			"column %d out of range on line %d", column, line)
	}
	offset := column - 1
	if offset+len(old) > len(text) || text[offset:offset+len(old)] != old {
		return auditerrors.Newf(auditerrors.PatchMismatch, nil,
			"text at %d:%d does not match %q", line, column, old)
	}
	e.lines[line-1] = text[:offset] + new + text[offset+len(old):]
	return nil
}

// Write persists all lines to path by writing a sibling temporary file and
// atomically renaming it over the original. The original is never left
// partially written: a failure removes the temporary file and leaves the
// original untouched.
func (e *LineEditor) Write(path string) error {
	tmp := path + ".new"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	var writeErr error
	for _, line := range e.lines {
		if _, writeErr = w.WriteString(line); writeErr != nil {
			break
		}
		if writeErr = w.WriteByte('\n'); writeErr != nil {
			break
		}
	}
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to write %s: %w", tmp, writeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Carets renders a marker line pointing at width characters starting at
// the one-based column, preserving tabs so the marker lines up under the
// original text.
func Carets(text string, column, width int) string {
	if column < 1 {
		column = 1
	}
	var b strings.Builder
	for i := 0; i < column-1; i++ {
		if i < len(text) && text[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	if width < 1 {
		width = 1
	}
	b.WriteString(strings.Repeat("^", width))
	return b.String()
}
