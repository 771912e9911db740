// Package labels holds the CoNLL-2003 tag table the model was fine-tuned on
// and the one place that knows how the inference pipeline encodes label ids.
package labels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Unknown is returned for ids outside the table.
const Unknown = "Unknown"

var ErrNoLabelID = errors.New("label has no numeric id")

var table = [...]string{
	"O",
	"B-PER",
	"I-PER",
	"B-ORG",
	"I-ORG",
	"B-LOC",
	"I-LOC",
	"B-MISC",
	"I-MISC",
}

var reverse = func() map[string]int {
	m := make(map[string]int, len(table))
	for id, tag := range table {
		m[tag] = id
	}
	return m
}()

// Resolve maps a label id to its tag.
func Resolve(id int) string {
	if id < 0 || id >= len(table) {
		return Unknown
	}
	return table[id]
}

// ID is the reverse of Resolve for the tags in the table.
func ID(tag string) (int, bool) {
	id, ok := reverse[tag]
	return id, ok
}

// Tags returns the table in id order.
func Tags() []string {
	out := make([]string, len(table))
	copy(out, table[:])
	return out
}

func Len() int { return len(table) }

// ParseID extracts the numeric id the pipeline appends to its label
// identifiers, e.g. "LABEL_3" -> 3.
func ParseID(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	idx := strings.LastIndex(raw, "_")
	suffix := raw[idx+1:]
	if suffix == "" {
		return 0, fmt.Errorf("%w: %q", ErrNoLabelID, raw)
	}
	id, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoLabelID, raw)
	}
	return id, nil
}

// ResolveLabel parses and resolves a raw identifier in one step. Identifiers
// without an id resolve to Unknown with id -1.
func ResolveLabel(raw string) (int, string) {
	id, err := ParseID(raw)
	if err != nil {
		return -1, Unknown
	}
	return id, Resolve(id)
}
