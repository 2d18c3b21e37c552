package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	t.Parallel()

	snapshot := map[string]any{
		"state":    "active",
		"priority": 300.0,
		"tags":     []any{"a", "b"},
	}
	assert.Empty(t, Diff(snapshot, snapshot, nil))
}

func TestDiffReportsChangedAndAddedKeys(t *testing.T) {
	t.Parallel()

	previous := map[string]any{"state": "new", "priority": 200.0}
	current := map[string]any{"state": "active", "priority": 200.0, "assignee": "ops"}

	changes := Diff(current, previous, nil)
	assert.Len(t, changes, 2)
	assert.Equal(t, Change{Old: "new", New: "active"}, changes["state"])
	assert.Equal(t, Change{Old: nil, New: "ops"}, changes["assignee"])
	_, ok := changes["priority"]
	assert.False(t, ok)
}

func TestDiffIgnoresBookkeepingKeys(t *testing.T) {
	t.Parallel()

	previous := map[string]any{"state": "new", "updated_at": "t1"}
	current := map[string]any{"state": "new", "updated_at": "t2", "created_at": "t0"}

	changes := Diff(current, previous, DefaultIgnoredKeys)
	assert.Empty(t, changes)
}

func TestDiffKeysRemovedFromCurrentNotReported(t *testing.T) {
	t.Parallel()

	previous := map[string]any{"state": "new", "note": "x"}
	current := map[string]any{"state": "new"}

	assert.Empty(t, Diff(current, previous, nil))
}

func TestMergeFieldsWin(t *testing.T) {
	t.Parallel()

	fields := map[string]Change{"state": {Old: "new", New: "active"}}
	details := map[string]Change{
		"state":           {Old: "x", New: "y"},
		"total_fix_count": {Old: 10.0, New: 20.0},
	}

	merged := Merge(fields, details)
	assert.Len(t, merged, 2)
	assert.Equal(t, "active", merged["state"].New)
	assert.Equal(t, 20.0, merged["total_fix_count"].New)
}
