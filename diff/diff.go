// Package diff computes line-level LCS diffs between an original and a suggested text.
//
// Both views backtrack from the end of the LCS table. When lines differ and
// both moves keep the same LCS length, the suggested-side line is emitted
// first while walking backwards, so in the final output a removal precedes the
// insertion that replaces it. Callers comparing output byte-for-byte rely on
// this order.
package diff

import "strings"

type Op string

const (
	Same   Op = "same"
	Add    Op = "add"
	Remove Op = "remove"
)

// Line is one entry of the unified view.
type Line struct {
	Op   Op     `json:"type"`
	Text string `json:"text"`
}

// Side is one half of a split row.
type Side struct {
	Op   Op     `json:"type"`
	Text string `json:"text"`
}

// Row is one entry of the split view. Left holds original lines (same/remove),
// Right holds suggested lines (same/add).
type Row struct {
	Left  *Side `json:"left,omitempty"`
	Right *Side `json:"right,omitempty"`
}

// Unified returns the unified diff of two texts split on "\n".
func Unified(original, suggested string) []Line {
	a := strings.Split(original, "\n")
	b := strings.Split(suggested, "\n")
	return walk(a, b)
}

// Split returns the side-by-side view. Rows are derived from the same walk as
// Unified and are not re-aligned afterwards.
func Split(original, suggested string) []Row {
	return SplitLines(Unified(original, suggested))
}

// SplitLines lays an existing unified diff out side by side.
func SplitLines(lines []Line) []Row {
	rows := make([]Row, len(lines))
	for i, line := range lines {
		side := &Side{Op: line.Op, Text: line.Text}
		switch line.Op {
		case Same:
			rows[i] = Row{Left: side, Right: &Side{Op: Same, Text: line.Text}}
		case Add:
			rows[i] = Row{Right: side}
		case Remove:
			rows[i] = Row{Left: side}
		}
	}
	return rows
}

func walk(a, b []string) []Line {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	reversed := make([]Line, 0, m+n)
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			reversed = append(reversed, Line{Op: Same, Text: a[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || dp[i][j-1] >= dp[i-1][j]):
			reversed = append(reversed, Line{Op: Add, Text: b[j-1]})
			j--
		default:
			reversed = append(reversed, Line{Op: Remove, Text: a[i-1]})
			i--
		}
	}

	out := make([]Line, len(reversed))
	for k, line := range reversed {
		out[len(reversed)-1-k] = line
	}
	return out
}

// Original rebuilds the original text from a unified diff.
func Original(lines []Line) string {
	return rebuild(lines, Add)
}

// Suggested rebuilds the suggested text from a unified diff.
func Suggested(lines []Line) string {
	return rebuild(lines, Remove)
}

func rebuild(lines []Line, skip Op) string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Op == skip {
			continue
		}
		kept = append(kept, line.Text)
	}
	return strings.Join(kept, "\n")
}

// Stats counts added and removed lines.
func Stats(lines []Line) (added, removed int) {
	for _, line := range lines {
		switch line.Op {
		case Add:
			added++
		case Remove:
			removed++
		}
	}
	return added, removed
}

// Format renders the unified view with "+ ", "- " and "  " prefixes.
func Format(lines []Line) string {
	var sb strings.Builder
	for i, line := range lines {
		switch line.Op {
		case Add:
			sb.WriteString("+ ")
		case Remove:
			sb.WriteString("- ")
		default:
			sb.WriteString("  ")
		}
		sb.WriteString(line.Text)
		if i < len(lines)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
