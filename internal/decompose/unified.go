package decompose

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// unifiedContext is the number of unchanged lines kept around each change.
const unifiedContext = 3

type lineKind int

const (
	lineContext lineKind = iota
	lineAdded
	lineRemoved
)

type diffLine struct {
	kind    lineKind
	oldIdx  int // old lines consumed before this line
	newIdx  int // new lines consumed before this line
	content string
}

// Unified builds a unified diff between two versions of a file so callers
// holding whole files can feed the pipeline. Returns "" when nothing changed.
func Unified(oldPath, newPath, oldContent, newContent string) string {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	a, b, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	lines := toLines(diffs)
	hunks := groupHunks(lines, unifiedContext)
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", oldPath, newPath)
	for _, h := range hunks {
		writeHunk(&sb, lines[h[0]:h[1]])
	}
	return sb.String()
}

func toLines(diffs []diffmatchpatch.Diff) []diffLine {
	var out []diffLine
	oldIdx, newIdx := 0, 0
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if d.Text == "" {
			continue
		}
		for _, l := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				out = append(out, diffLine{lineContext, oldIdx, newIdx, l})
				oldIdx++
				newIdx++
			case diffmatchpatch.DiffDelete:
				out = append(out, diffLine{lineRemoved, oldIdx, newIdx, l})
				oldIdx++
			case diffmatchpatch.DiffInsert:
				out = append(out, diffLine{lineAdded, oldIdx, newIdx, l})
				newIdx++
			}
		}
	}
	return out
}

// groupHunks returns [start,end) index ranges into lines, merging changes
// whose context windows overlap.
func groupHunks(lines []diffLine, context int) [][2]int {
	var hunks [][2]int
	for i, l := range lines {
		if l.kind == lineContext {
			continue
		}
		start := i - context
		if start < 0 {
			start = 0
		}
		end := i + context + 1
		if end > len(lines) {
			end = len(lines)
		}
		if n := len(hunks); n > 0 && start <= hunks[n-1][1] {
			if end > hunks[n-1][1] {
				hunks[n-1][1] = end
			}
			continue
		}
		hunks = append(hunks, [2]int{start, end})
	}
	return hunks
}

func writeHunk(sb *strings.Builder, lines []diffLine) {
	oldCount, newCount := 0, 0
	for _, l := range lines {
		if l.kind != lineAdded {
			oldCount++
		}
		if l.kind != lineRemoved {
			newCount++
		}
	}
	oldStart := lines[0].oldIdx + 1
	newStart := lines[0].newIdx + 1
	if oldCount == 0 {
		oldStart--
	}
	if newCount == 0 {
		newStart--
	}
	fmt.Fprintf(sb, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
	for _, l := range lines {
		switch l.kind {
		case lineAdded:
			sb.WriteString("+")
		case lineRemoved:
			sb.WriteString("-")
		default:
			sb.WriteString(" ")
		}
		sb.WriteString(l.content)
		sb.WriteString("\n")
	}
}
