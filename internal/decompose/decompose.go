// Package decompose turns unified diffs into ordered edit operations.
package decompose

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/patchguard/internal/model"
)

// DefaultMaxOperations is the operation cap applied when Options leaves it unset.
const DefaultMaxOperations = 10

// FallbackTarget is the target of the Modify operation emitted when a diff
// yields no operations.
const FallbackTarget = "patch"

// Options controls decomposition limits.
type Options struct {
	MaxOperations int
	Clock         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxOperations <= 0 {
		o.MaxOperations = DefaultMaxOperations
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// hunk tracks the old and new lines still owed to the open hunk.
type hunk struct {
	oldLeft int
	newLeft int
}

func (h hunk) open() bool { return h.oldLeft > 0 || h.newLeft > 0 }

// Decompose parses a unified diff into operations.
//
// Rules:
//   - "@@ -a,b +c,d @@" opens a hunk of b old and d new lines and resets the
//     line counter to c
//   - inside a hunk every "+" line is an Add and every "-" line a Remove,
//     even when it reads "+++" or "---"; the counter advances on "+" and
//     context lines only
//   - outside a hunk "+++ path"/"--- path" set the current target ("a/" and
//     "b/" prefixes stripped); other "+"/"-" lines are read as bare edits
//
// A diff that yields nothing produces a single Modify on FallbackTarget
// carrying the description. Exceeding the operation cap or naming an unsafe
// target returns a *PolicyError and no operations.
func Decompose(diff, description string, opts Options) ([]model.Operation, error) {
	opts = opts.withDefaults()
	now := opts.Clock()

	var ops []model.Operation
	target := FallbackTarget
	line := 1
	total := 0
	var h hunk

	emit := func(kind model.OperationKind, content string, at int) error {
		if err := CheckTarget(target); err != nil {
			return err
		}
		total++
		if total > opts.MaxOperations {
			return nil
		}
		ops = append(ops, model.Operation{
			Kind:      kind,
			Target:    target,
			Content:   content,
			Line:      at,
			ParsedAt:  now,
			LooksSafe: LooksSafe(content),
		})
		return nil
	}

	lines := strings.Split(diff, "\n")
	for i := range lines {
		l := strings.TrimSuffix(lines[i], "\r")

		if h.open() && !startsNextFile(lines, i) {
			inside := true
			switch {
			case strings.HasPrefix(l, "+"):
				if err := emit(model.OpAdd, l[1:], line); err != nil {
					return nil, err
				}
				line++
				h.newLeft--
			case strings.HasPrefix(l, "-"):
				if err := emit(model.OpRemove, l[1:], line); err != nil {
					return nil, err
				}
				h.oldLeft--
			case strings.HasPrefix(l, `\`):
				// "\ No newline at end of file"
			case l == "", strings.HasPrefix(l, " "):
				line++
				h.oldLeft--
				h.newLeft--
			default:
				inside = false
			}
			if inside {
				continue
			}
		}
		h = hunk{}

		switch {
		case strings.HasPrefix(l, "@@"):
			if m := hunkHeaderRe.FindStringSubmatch(l); m != nil {
				line, _ = strconv.Atoi(m[2])
				h = hunk{oldLeft: hunkCount(m[1]), newLeft: hunkCount(m[3])}
			}
		case isFileHeader(l):
			if t := parseTarget(l[3:]); t != "" {
				target = t
			}
		case strings.HasPrefix(l, "diff "), strings.HasPrefix(l, "index "), strings.HasPrefix(l, `\`):
			// git headers and "\ No newline at end of file"
		case strings.HasPrefix(l, "+"):
			if err := emit(model.OpAdd, l[1:], line); err != nil {
				return nil, err
			}
			line++
		case strings.HasPrefix(l, "-"):
			if err := emit(model.OpRemove, l[1:], line); err != nil {
				return nil, err
			}
		default:
			line++
		}
	}

	if total > opts.MaxOperations {
		return nil, &PolicyError{
			Code:    CodeTooManyOperations,
			Message: fmt.Sprintf("too many operations: %d exceeds limit %d", total, opts.MaxOperations),
		}
	}

	if len(ops) == 0 {
		ops = append(ops, model.Operation{
			Kind:      model.OpModify,
			Target:    FallbackTarget,
			Content:   description,
			ParsedAt:  now,
			LooksSafe: LooksSafe(description),
		})
	}

	return ops, nil
}

// hunkCount reads an optional hunk length; an omitted length means 1.
func hunkCount(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}

// isFileHeader reports whether l is a "---"/"+++" file header line rather
// than an edit whose content starts with "++" or "--".
func isFileHeader(l string) bool {
	if !strings.HasPrefix(l, "+++") && !strings.HasPrefix(l, "---") {
		return false
	}
	rest := l[3:]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// startsNextFile reports whether lines[i] begins a new file section
// ("--- a", "+++ b", "@@") inside a hunk whose counts overran.
func startsNextFile(lines []string, i int) bool {
	if i+2 >= len(lines) {
		return false
	}
	return strings.HasPrefix(lines[i], "--- ") &&
		strings.HasPrefix(lines[i+1], "+++ ") &&
		strings.HasPrefix(lines[i+2], "@@")
}

// parseTarget extracts the file path from the remainder of a ---/+++ line.
// Returns "" for /dev/null and empty headers.
func parseTarget(rest string) string {
	rest = strings.TrimSpace(rest)
	// Drop trailing timestamps ("path\t2024-01-01 ...").
	if i := strings.IndexByte(rest, '\t'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" || rest == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(rest, "a/") || strings.HasPrefix(rest, "b/") {
		rest = rest[2:]
	}
	return rest
}

// unsafeHints are the cheap substrings of the LooksSafe pre-filter.
var unsafeHints = []string{
	"eval",
	"function(",
	"innerhtml",
	"outerhtml",
	"document.write",
	"__proto__",
	"prototype",
	"process.",
	"require(",
	"import(",
	"child_process",
	"fetch(",
	"xmlhttprequest",
	"globalthis",
	"while(true)",
	"while (true)",
	"for(;;)",
	"for (;;)",
	"fs.",
}

// LooksSafe is a cheap pre-filter: true when content contains none of the
// hint substrings. It never replaces detection.
func LooksSafe(content string) bool {
	lower := strings.ToLower(content)
	for _, h := range unsafeHints {
		if strings.Contains(lower, h) {
			return false
		}
	}
	return true
}
