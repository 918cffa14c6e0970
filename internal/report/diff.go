package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/roach88/hdrc/internal/drc"
)

// Delta is the difference between the violations of two runs.
type Delta struct {
	Added   []string
	Removed []string
	Kept    int
}

// Empty reports whether the runs found the same violations.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Key is the line a violation is compared by. It leaves out the group and
// severity, which follow from the rule.
func Key(v drc.Violation) string {
	return fmt.Sprintf("%s %s %s %s %s", v.Cell, v.Rule, v.Kind, v.Bounds(), v.Message)
}

// Compare diffs two violation lists. Both are reduced to sorted key lines
// first, so report order does not matter.
func Compare(before, after []drc.Violation) Delta {
	a, b := keyText(before), keyText(after)

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var d Delta
	for _, diff := range diffs {
		ls := splitLines(diff.Text)
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			d.Added = append(d.Added, ls...)
		case diffmatchpatch.DiffDelete:
			d.Removed = append(d.Removed, ls...)
		case diffmatchpatch.DiffEqual:
			d.Kept += len(ls)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	return d
}

func keyText(vs []drc.Violation) string {
	keys := make([]string, len(vs))
	for i, v := range vs {
		keys[i] = Key(v)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\n')
	}
	return b.String()
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
