// Package scan walks C/C++ translation units for risky coding patterns
// and records each match into a findings run. Detectors are a fixed
// enumeration of independent predicates over syntax nodes; they share no
// mutable state.
package scan

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"srcaudit/internal/findings"
	"srcaudit/internal/logging"
)

// Scanner parses source files and runs the pattern detectors.
type Scanner struct {
	parser  *sitter.Parser
	logger  *logging.Logger
	exclude []string
}

// NewScanner creates a scanner. exclude lists path substrings to skip.
func NewScanner(exclude []string, logger *logging.Logger) *Scanner {
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	return &Scanner{
		parser:  parser,
		logger:  logger,
		exclude: exclude,
	}
}

// Excluded reports whether path matches the exclude list.
func (s *Scanner) Excluded(path string) bool {
	for _, e := range s.exclude {
		if e != "" && strings.Contains(path, e) {
			return true
		}
	}
	return false
}

// ScanFile analyzes one translation unit and records its findings into
// run. The file is marked as touched even when it yields no findings, so
// stale results from earlier runs are shadowed at commit.
func (s *Scanner) ScanFile(ctx context.Context, path string, run *findings.Run) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	run.MarkTouched(path)

	tree, err := s.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer tree.Close()

	rep := &reporter{run: run, path: path}
	walk(tree.RootNode(), func(node *sitter.Node) {
		detectCall(node, source, rep)
		detectSubscript(node, source, rep)
		detectStaticLocal(node, source, rep)
	})
	if rep.err != nil {
		return rep.err
	}

	s.logger.Debug("scanned translation unit", logging.Fields{
		"path":     path,
		"findings": rep.count,
	})
	return nil
}

// reporter adapts a findings run to the detector callbacks and remembers
// the first record failure.
type reporter struct {
	run   *findings.Run
	path  string
	count int
	err   error
}

func (r *reporter) report(node *sitter.Node, tool, message string) {
	if r.err != nil {
		return
	}
	point := node.StartPoint()
	if err := r.run.Record(r.path, point.Row+1, point.Column+1, tool, message); err != nil {
		r.err = err
		return
	}
	r.count++
}

// walk visits every node in the tree, including unnamed ones.
func walk(root *sitter.Node, visit func(*sitter.Node)) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(node)
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(source) || start > end {
		return ""
	}
	return string(source[start:end])
}
