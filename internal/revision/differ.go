// Package revision computes field-level diffs between consecutive event
// revision snapshots. The alerting layer matches rule conditions against
// these diffs.
package revision

import (
	"reflect"
)

// DefaultIgnoredKeys are bookkeeping fields excluded from every diff.
var DefaultIgnoredKeys = []string{"created_at", "updated_at", "sort_at"}

// Change is one differing key: the previous value and the current one.
// Old is nil when the key was absent from the previous snapshot.
type Change struct {
	Old any
	New any
}

// Diff compares the current snapshot against the previous one. A key counts
// as changed when it exists in current and its value differs from previous,
// including keys missing from previous entirely. Keys only present in
// previous are not reported; rules react to what the event says now.
func Diff(current, previous map[string]any, ignored []string) map[string]Change {
	skip := make(map[string]struct{}, len(ignored))
	for _, k := range ignored {
		skip[k] = struct{}{}
	}

	changes := make(map[string]Change)
	for key, newValue := range current {
		if _, ok := skip[key]; ok {
			continue
		}
		oldValue, existed := previous[key]
		if existed && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		changes[key] = Change{Old: oldValue, New: newValue}
	}
	return changes
}

// Merge unions two diffs. The fields diff wins on key collisions, which
// cannot occur in practice since field and detail keys are disjoint.
func Merge(fields, details map[string]Change) map[string]Change {
	merged := make(map[string]Change, len(fields)+len(details))
	for k, v := range details {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}
