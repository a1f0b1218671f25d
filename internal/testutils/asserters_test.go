package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingT captures what an asserter reports instead of failing the test.
type recordingT struct {
	errors []string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTextAsserter(t *testing.T) {
	t.Run("identical text passes", func(t *testing.T) {
		rt := &recordingT{}
		NewTextAsserter(rt).AssertLines("a\nb", "a", "b")
		assert.Empty(t, rt.errors)
	})

	t.Run("mismatch reports a unified diff", func(t *testing.T) {
		rt := &recordingT{}
		NewTextAsserter(rt).AssertLines("Heart (AA:01)\n  Battery [180f]\n", "Heart (AA:01)", "  Heart Rate [180d]", "")
		require.Len(t, rt.errors, 1)
		assert.Contains(t, rt.errors[0], "--- expected")
		assert.Contains(t, rt.errors[0], "+++ actual")
		assert.Contains(t, rt.errors[0], "-  Heart Rate [180d]")
		assert.Contains(t, rt.errors[0], "+  Battery [180f]")
	})

	t.Run("trim space", func(t *testing.T) {
		ta := NewTextAsserter(t).WithOptions(WithTrimSpace(true))
		assert.Empty(t, ta.Diff("\n  a\nb\n\n", "a\nb"))
		assert.NotEmpty(t, ta.Diff("a\n\nb", "a\nb"), "inner blank lines still count")
	})

	t.Run("trailing whitespace", func(t *testing.T) {
		assert.NotEmpty(t, NewTextAsserter(t).Diff("a  \nb\t", "a\nb"))
		ta := NewTextAsserter(t).WithOptions(WithIgnoreTrailingWhitespace(true))
		assert.Empty(t, ta.Diff("a  \nb\t", "a\nb"))
		assert.NotEmpty(t, ta.Diff("  a", "a"), "leading whitespace still counts")
	})
}

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []Option
		match    bool
	}{
		{"key order is irrelevant", `{"a": 1, "b": 2}`, `{"b": 2, "a": 1}`, nil, true},
		{"value mismatch", `{"a": 1}`, `{"a": 2}`, nil, false},
		{"extra keys ignored by default", `{"a": 1, "b": 2}`, `{"a": 1}`, nil, true},
		{"extra keys rejected on demand", `{"a": 1, "b": 2}`, `{"a": 1}`, []Option{WithIgnoreExtraKeys(false)}, false},
		{"nested extra keys ignored", `[{"id": "x", "rssi": -60}]`, `[{"id": "x"}]`, nil, true},
		{"root arrays compared in order", `[1, 2]`, `[2, 1]`, nil, false},
		{"null equals empty array", `{"services": null}`, `{"services": []}`, nil, true},
		{"presence matches any value", `{"last_seen": "2024-05-01T12:00:00Z"}`, `{"last_seen": "` + PresencePlaceholder + `"}`, nil, true},
		{"presence requires the key", `{}`, `{"last_seen": "` + PresencePlaceholder + `"}`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewJSONAsserter(t).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, diff)
			} else {
				assert.NotEmpty(t, diff)
			}
		})
	}
}

func TestJSONAsserter_ReportsFailures(t *testing.T) {
	rt := &recordingT{}
	NewJSONAsserter(rt).Assert(`{"value": "0648"}`, `{"value": "0100"}`)
	require.Len(t, rt.errors, 1)
	assert.Contains(t, rt.errors[0], "JSON assertion failed")

	rt = &recordingT{}
	NewJSONAsserter(rt).AssertValue(map[string]int{"services": 2}, `{"services": 2}`)
	assert.Empty(t, rt.errors)

	assert.Contains(t, NewJSONAsserter(t).Diff(`{`, `{}`), "invalid actual JSON")
	assert.Contains(t, NewJSONAsserter(t).Diff(`{}`, `nope`), "invalid expected JSON")
}
