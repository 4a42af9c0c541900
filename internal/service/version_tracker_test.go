package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helixsearch/indexcoord/internal/model"
)

func TestVersionTracker_CurrentVersionEmpty(t *testing.T) {
	tracker := NewVersionTracker(zap.NewNop())

	assert.Nil(t, tracker.CurrentVersion("tenant-1"))
	assert.False(t, tracker.IsActive("tenant-1", "v1"))
	assert.Empty(t, tracker.Versions("tenant-1"))
}

func TestVersionTracker_CreatingIsNotCurrent(t *testing.T) {
	tracker := NewVersionTracker(zap.NewNop())

	tracker.RecordCreating("tenant-1", "v1", "owner-1")

	assert.Nil(t, tracker.CurrentVersion("tenant-1"), "an in-flight version is not live")
	assert.False(t, tracker.IsActive("tenant-1", "v1"))

	records := tracker.Versions("tenant-1")
	require.Len(t, records, 1)
	assert.Equal(t, model.VersionStatusCreating, records[0].Status)
	assert.Equal(t, "owner-1", records[0].OwnerLockID)
}

func TestVersionTracker_ActivateMakesCurrent(t *testing.T) {
	tracker := NewVersionTracker(zap.NewNop())

	tracker.RecordCreating("tenant-1", "v1", "owner-1")
	tracker.Activate("tenant-1", "v1")

	assert.True(t, tracker.IsActive("tenant-1", "v1"))
	current := tracker.CurrentVersion("tenant-1")
	require.NotNil(t, current)
	assert.Equal(t, "v1", current.Version)
	assert.Equal(t, model.VersionStatusActive, current.Status)
}

func TestVersionTracker_ActivateDoesNotTouchPredecessor(t *testing.T) {
	tracker := NewVersionTracker(zap.NewNop())

	tracker.Activate("tenant-1", "v1")
	tracker.RecordCreating("tenant-1", "v2", "owner-2")
	tracker.Activate("tenant-1", "v2")

	// The caller deprecates the predecessor explicitly.
	assert.True(t, tracker.IsActive("tenant-1", "v2"))
	assert.False(t, tracker.IsActive("tenant-1", "v1"))

	var v1Status model.VersionStatus
	for _, rec := range tracker.Versions("tenant-1") {
		if rec.Version == "v1" {
			v1Status = rec.Status
		}
	}
	assert.Equal(t, model.VersionStatusActive, v1Status, "activate must not deprecate the predecessor itself")

	tracker.Deprecate("tenant-1", "v1")
	assert.True(t, tracker.IsActive("tenant-1", "v2"), "deprecating the predecessor leaves the successor live")
}

func TestVersionTracker_DeprecateActiveClearsCurrent(t *testing.T) {
	tracker := NewVersionTracker(zap.NewNop())

	tracker.Activate("tenant-1", "v1")
	tracker.Deprecate("tenant-1", "v1")

	assert.Nil(t, tracker.CurrentVersion("tenant-1"))
	assert.False(t, tracker.IsActive("tenant-1", "v1"))

	// Deprecating unknown tenants and versions is a no-op.
	tracker.Deprecate("tenant-404", "v1")
	tracker.Deprecate("tenant-1", "v404")
}

func TestVersionTracker_RemoveGarbageCollects(t *testing.T) {
	tracker := NewVersionTracker(zap.NewNop())

	tracker.Activate("tenant-1", "v1")
	tracker.RecordCreating("tenant-1", "v2", "owner-2")

	tracker.Remove("tenant-1", "v2")
	assert.Len(t, tracker.Versions("tenant-1"), 1)
	assert.True(t, tracker.IsActive("tenant-1", "v1"))

	tracker.Remove("tenant-1", "v1")
	assert.Empty(t, tracker.Versions("tenant-1"))
	assert.Nil(t, tracker.CurrentVersion("tenant-1"))
}

func TestVersionTracker_Clear(t *testing.T) {
	tracker := NewVersionTracker(zap.NewNop())

	tracker.Activate("tenant-1", "v1")
	tracker.Activate("tenant-2", "v1")

	tracker.Clear("tenant-1")

	assert.Nil(t, tracker.CurrentVersion("tenant-1"))
	assert.NotNil(t, tracker.CurrentVersion("tenant-2"), "clearing one tenant leaves others intact")
}

func TestVersionTracker_ReturnsCopies(t *testing.T) {
	tracker := NewVersionTracker(zap.NewNop())

	tracker.Activate("tenant-1", "v1")

	current := tracker.CurrentVersion("tenant-1")
	current.Status = model.VersionStatusDeprecated

	fresh := tracker.CurrentVersion("tenant-1")
	assert.Equal(t, model.VersionStatusActive, fresh.Status, "callers must not mutate tracker state through snapshots")
}
