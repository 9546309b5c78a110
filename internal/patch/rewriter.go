package patch

import (
	"fmt"
	"sort"
	"strings"

	auditerrors "srcaudit/internal/errors"
	"srcaudit/internal/logging"
)

// ToolSprintfOverload is the finding category the rewriter acts on.
const ToolSprintfOverload = "sprintf-overload"

// Rewriter consumes sprintf-overload findings from the report reader and
// rewrites the matched call sites in memory. Nothing is written to disk
// until Flush, and an unresolved mismatch in any file fails the whole run
// so no file is written with edits from a possibly-stale analysis.
type Rewriter struct {
	rules   map[string]string
	logger  *logging.Logger
	verbose bool

	files  map[string]*LineEditor
	failed bool
}

// NewRewriter creates a rewriter with the given call-name replacement
// rules (e.g. sprintf -> formatstr).
func NewRewriter(rules map[string]string, verbose bool, logger *logging.Logger) *Rewriter {
	return &Rewriter{
		rules:   rules,
		logger:  logger,
		verbose: verbose,
		files:   make(map[string]*LineEditor),
	}
}

// Failed reports whether any finding could not be applied.
func (rw *Rewriter) Failed() bool {
	return rw.failed
}

// Apply is a report callback. Findings from other tools pass through
// untouched. Returning false stops the report: that only happens when a
// file cannot be read or a message cannot be parsed, conditions under
// which continuing is pointless. A plain patch mismatch is reported and
// enumeration continues so every stale site gets diagnosed in one run.
func (rw *Rewriter) Apply(path string, line, column uint32, tool, message string) bool {
	if tool != ToolSprintfOverload {
		return true
	}

	editor, ok := rw.files[path]
	if !ok {
		editor = &LineEditor{}
		if err := editor.Read(path); err != nil {
			rw.failed = true
			rw.logger.Error("failed to read file", logging.Fields{
				"path":  path,
				"error": err.Error(),
			})
			return false
		}
		rw.files[path] = editor
	}

	// The recorded message is "<name>(<target type>)"; the call name in
	// front of the parenthesis is the text to replace.
	old, replacement, err := rw.plan(message)
	if err != nil {
		rw.failed = true
		rw.logger.Error("could not parse message", logging.Fields{
			"path":    path,
			"line":    line,
			"column":  column,
			"message": message,
		})
		return false
	}

	text := editor.Line(int(line))
	if err := editor.Patch(int(line), int(column), old, replacement); err != nil {
		rw.failed = true
		rw.logger.Error(fmt.Sprintf("could not apply %s -> %s", old, replacement), logging.Fields{
			"path":   path,
			"line":   line,
			"column": column,
		})
		rw.showSite(text, int(column), len(old))
		return true
	}

	if rw.verbose {
		rw.logger.Info(fmt.Sprintf("applying %s -> %s", old, replacement), logging.Fields{
			"path":   path,
			"line":   line,
			"column": column,
		})
		rw.showSite(text, int(column), len(old))
	}
	return true
}

// plan derives the (old, new) pair for a finding message.
func (rw *Rewriter) plan(message string) (old, replacement string, err error) {
	pos := strings.IndexByte(message, '(')
	if pos < 0 {
		return "", "", auditerrors.Newf(auditerrors.PatchMismatch, nil,
			"could not parse message: %s", message)
	}
	old = message[:pos]
	replacement, ok := rw.rules[old]
	if !ok {
		return "", "", auditerrors.Newf(auditerrors.PatchMismatch, nil,
			"no rewrite rule for %s", old)
	}
	return old, replacement, nil
}

func (rw *Rewriter) showSite(text string, column, width int) {
	if text == "" {
		return
	}
	rw.logger.Info("  "+text, nil)
	rw.logger.Info("  "+Carets(text, column, width), nil)
}

// Flush writes all touched files back to disk. It refuses to write
// anything after a failure, and dryRun skips the writes entirely. Files
// are written in sorted order so failures are deterministic.
func (rw *Rewriter) Flush(dryRun bool) error {
	if rw.failed {
		return auditerrors.New(auditerrors.PatchMismatch,
			"changes not applied because of previous errors", nil)
	}
	if dryRun {
		return nil
	}

	paths := make([]string, 0, len(rw.files))
	for path := range rw.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := rw.files[path].Write(path); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
