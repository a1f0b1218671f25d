package testutils

import (
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the subset of testing.T the asserters report through.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

type TextAssertOptions struct {
	// TrimSpace drops leading and trailing blank space around the whole text.
	TrimSpace bool `default:"false"`
	// IgnoreTrailingWhitespace drops padding at the end of every line, as
	// left by column renderers.
	IgnoreTrailingWhitespace bool `default:"false"`
}

// TextOption is a functional option for configuring TextAsserter
type TextOption func(*TextAssertOptions)

// TextAsserter compares rendered text (CLI tables, trees) and reports a unified diff.
//
//	testutils.NewTextAsserter(t).
//		WithOptions(testutils.WithTrimSpace(true)).
//		AssertLines(out.String(), "Heart (AA:01)", "  Heart Rate [180d]")
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
}

func NewTextAsserter(t TestingT) *TextAsserter {
	opts := TextAssertOptions{}
	defaults.SetDefaults(&opts)
	return &TextAsserter{t: t, options: opts}
}

func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, opt := range opts {
		opt(&ta.options)
	}
	return ta
}

// Assert compares actual text against expected text
func (ta *TextAsserter) Assert(actual, expected string) {
	ta.t.Helper()
	if diff := ta.Diff(actual, expected); diff != "" {
		ta.t.Errorf("Text assertion failed:\n%s", diff)
	}
}

// AssertLines compares actual text against expected lines joined with "\n"
func (ta *TextAsserter) AssertLines(actual string, expected ...string) {
	ta.t.Helper()
	ta.Assert(actual, strings.Join(expected, "\n"))
}

// Diff returns "" when both texts match after normalization, otherwise a
// unified diff from expected to actual.
func (ta *TextAsserter) Diff(actual, expected string) string {
	want := ta.normalize(expected)
	got := ta.normalize(actual)
	if want == got {
		return ""
	}
	edits := myers.ComputeEdits("", want, got)
	return fmt.Sprint(gotextdiff.ToUnified("expected", "actual", want, edits))
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.options.TrimSpace {
		text = strings.TrimSpace(text)
	}
	if !ta.options.IgnoreTrailingWhitespace {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func WithTrimSpace(trim bool) TextOption {
	return func(opts *TextAssertOptions) {
		opts.TrimSpace = trim
	}
}

func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(opts *TextAssertOptions) {
		opts.IgnoreTrailingWhitespace = ignore
	}
}
