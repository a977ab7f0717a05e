package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedReplacementOrder(t *testing.T) {
	got := Unified("a\nb\nc", "a\nx\nc")
	want := []Line{
		{Op: Same, Text: "a"},
		{Op: Remove, Text: "b"},
		{Op: Add, Text: "x"},
		{Op: Same, Text: "c"},
	}
	assert.Equal(t, want, got)
}

func TestUnifiedIdentical(t *testing.T) {
	for _, text := range []string{"one", "a\nb\nc", "x\n\ny\n"} {
		for _, line := range Unified(text, text) {
			assert.Equal(t, Same, line.Op, "input %q", text)
		}
	}
}

func TestUnifiedRoundTrip(t *testing.T) {
	cases := []struct{ original, suggested string }{
		{"a\nb\nc", "a\nx\nc"},
		{"", "new\nfile"},
		{"gone\nentirely", ""},
		{"func a() {}\n\nfunc b() {}\n", "func a() {}\n\nfunc c() {}\nfunc b() {}\n"},
		{"1\n2\n3\n4\n5", "0\n1\n3\n5\n6"},
	}
	for _, tc := range cases {
		lines := Unified(tc.original, tc.suggested)
		assert.Equal(t, tc.suggested, Suggested(lines), "suggested side of %q", tc.original)
		assert.Equal(t, tc.original, Original(lines), "original side of %q", tc.original)
	}
}

func TestUnifiedPureInsertionAndDeletion(t *testing.T) {
	inserted := Unified("a\nc", "a\nb\nc")
	assert.Equal(t, []Line{{Same, "a"}, {Add, "b"}, {Same, "c"}}, inserted)

	deleted := Unified("a\nb\nc", "a\nc")
	assert.Equal(t, []Line{{Same, "a"}, {Remove, "b"}, {Same, "c"}}, deleted)
}

func TestSplitRows(t *testing.T) {
	rows := Split("a\nb\nc", "a\nx\nc")
	require.Len(t, rows, 4)

	assert.Equal(t, &Side{Op: Same, Text: "a"}, rows[0].Left)
	assert.Equal(t, &Side{Op: Same, Text: "a"}, rows[0].Right)

	assert.Equal(t, &Side{Op: Remove, Text: "b"}, rows[1].Left)
	assert.Nil(t, rows[1].Right)

	assert.Nil(t, rows[2].Left)
	assert.Equal(t, &Side{Op: Add, Text: "x"}, rows[2].Right)
}

func TestStatsAndFormat(t *testing.T) {
	lines := Unified("a\nb", "a\nc\nd")
	added, removed := Stats(lines)
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)
	assert.Equal(t, "  a\n- b\n+ c\n+ d", Format(lines))
}

func TestSplitLinesMatchesSplit(t *testing.T) {
	original, suggested := "a\nb\nc", "a\nx\nc\nd"
	assert.Equal(t, Split(original, suggested), SplitLines(Unified(original, suggested)))
}
