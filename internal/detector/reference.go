package detector

import (
	"strconv"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const referenceSeparator = "::"

// Reference is a script source qualified by the entry point it was found on.
type Reference struct {
	EntryPoint string
	Source     string
}

func (r Reference) String() string {
	return r.EntryPoint + referenceSeparator + r.Source
}

// Update describes a detected deployment.
type Update struct {
	Previous   []Reference
	Current    []Reference
	Added      []Reference
	Removed    []Reference
	DetectedAt time.Time
}

// Changes lists references inserted into and deleted from prev to produce next.
// A reordered reference shows up in both lists.
func Changes(prev, next []Reference) (added, removed []Reference) {
	// Each distinct reference becomes one numbered line, so sources that
	// contain line breaks still diff as a single unit.
	var table referenceTable
	a, b := table.encode(prev), table.encode(next)

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		for _, line := range splitLines(d.Text) {
			ref, ok := table.lookup(line)
			if !ok {
				continue
			}
			if d.Type == diffmatchpatch.DiffInsert {
				added = append(added, ref)
			} else {
				removed = append(removed, ref)
			}
		}
	}
	return added, removed
}

type referenceTable struct {
	ids  map[Reference]int
	refs []Reference
}

func (t *referenceTable) encode(refs []Reference) string {
	if t.ids == nil {
		t.ids = make(map[Reference]int)
	}
	var b strings.Builder
	for _, r := range refs {
		id, ok := t.ids[r]
		if !ok {
			id = len(t.refs)
			t.ids[r] = id
			t.refs = append(t.refs, r)
		}
		b.WriteString(strconv.Itoa(id))
		b.WriteByte('\n')
	}
	return b.String()
}

func (t *referenceTable) lookup(line string) (Reference, bool) {
	id, err := strconv.Atoi(line)
	if err != nil || id < 0 || id >= len(t.refs) {
		return Reference{}, false
	}
	return t.refs[id], true
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
