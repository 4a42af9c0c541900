package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityClass_Ordering(t *testing.T) {
	classes := AllPriorityClasses()

	for i := 1; i < len(classes); i++ {
		assert.Greater(t, int(classes[i]), int(classes[i-1]))
	}

	assert.Greater(t, PriorityDeletion, PriorityReconnection)
	assert.Greater(t, PriorityReconnection, PriorityPartitionRecreation)
	assert.Greater(t, PriorityPartitionRecreation, PriorityManualSync)
	assert.Greater(t, PriorityManualSync, PriorityBackgroundSync)
}

func TestPriorityClass_LabelRoundTrip(t *testing.T) {
	for _, p := range AllPriorityClasses() {
		parsed, err := ParsePriorityClass(p.String())
		assert.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := ParsePriorityClass("no-such-class")
	assert.Error(t, err)
}

func TestPriorityClass_Timeouts(t *testing.T) {
	// Background sync is the shortest operation, reconnection the longest.
	for _, p := range AllPriorityClasses() {
		assert.Positive(t, p.Timeout())
		if p != PriorityBackgroundSync {
			assert.Greater(t, p.Timeout(), PriorityBackgroundSync.Timeout(), p.String())
		}
	}
	assert.Greater(t, PriorityReconnection.Timeout(), PriorityDeletion.Timeout())
}

func TestPriorityClass_Singletons(t *testing.T) {
	assert.True(t, PriorityPartitionRecreation.IsSingleton())
	assert.True(t, PriorityReconnection.IsSingleton())
	assert.False(t, PriorityBackgroundSync.IsSingleton())
	assert.False(t, PriorityManualSync.IsSingleton())
	assert.False(t, PriorityDeletion.IsSingleton())
}

func TestPriorityClass_Valid(t *testing.T) {
	for _, p := range AllPriorityClasses() {
		assert.True(t, p.Valid())
	}
	assert.False(t, PriorityClass(0).Valid())
	assert.False(t, PriorityClass(6).Valid())
}
