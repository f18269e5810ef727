package reconcile

import (
	"fmt"
	"regexp"
	"strings"
)

// Rewriter extracts and rewrites the version embedded in one artifact type.
// Keeping extraction and rewriting behind one interface makes the
// verify-after-write contract checkable without loose re-parsing.
type Rewriter interface {
	// Extract returns the embedded version and whether one was found.
	Extract(content []byte) (string, bool)
	// Rewrite returns content with oldVersion replaced by newVersion.
	Rewrite(content []byte, oldVersion, newVersion string) []byte
}

// PatternRewriter locates the version via a regular expression whose first
// capture group is the version value.
type PatternRewriter struct {
	pattern *regexp.Regexp
}

// NewPatternRewriter compiles the provided expression.
// The expression must contain exactly one capture group.
func NewPatternRewriter(expression string) (*PatternRewriter, error) {
	pattern, err := regexp.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile binding pattern: %w", err)
	}

	if pattern.NumSubexp() != 1 {
		return nil, fmt.Errorf("binding pattern %q must have exactly one capture group", expression)
	}

	return &PatternRewriter{pattern: pattern}, nil
}

// Extract returns the first captured version value.
func (r *PatternRewriter) Extract(content []byte) (string, bool) {
	match := r.pattern.FindSubmatch(content)
	if match == nil {
		return "", false
	}

	return string(match[1]), true
}

// Rewrite substitutes the captured value inside every pattern match.
func (r *PatternRewriter) Rewrite(content []byte, oldVersion, newVersion string) []byte {
	return r.pattern.ReplaceAllFunc(content, func(matched []byte) []byte {
		return []byte(strings.Replace(string(matched), oldVersion, newVersion, 1))
	})
}

// ShellAssignmentRewriter handles `NAME="X.Y.Z"` assignments in shell
// artifacts, the most common binding in the helper script set.
type ShellAssignmentRewriter struct {
	inner *PatternRewriter
}

// NewShellAssignmentRewriter builds a rewriter for the named shell variable.
func NewShellAssignmentRewriter(variable string) (*ShellAssignmentRewriter, error) {
	inner, err := NewPatternRewriter(
		regexp.QuoteMeta(variable) + `="(\d+\.\d+\.\d+)"`)
	if err != nil {
		return nil, err
	}

	return &ShellAssignmentRewriter{inner: inner}, nil
}

// Extract returns the assigned version value.
func (r *ShellAssignmentRewriter) Extract(content []byte) (string, bool) {
	return r.inner.Extract(content)
}

// Rewrite substitutes the assigned version value.
func (r *ShellAssignmentRewriter) Rewrite(content []byte, oldVersion, newVersion string) []byte {
	return r.inner.Rewrite(content, oldVersion, newVersion)
}
