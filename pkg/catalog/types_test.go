package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordStatusValues(t *testing.T) {
	assert.EqualValues(t, -1, RecordError)
	assert.EqualValues(t, 0, RecordFound)
	assert.EqualValues(t, 1, RecordNotFound)
}

func TestNodeAttachedValues(t *testing.T) {
	assert.EqualValues(t, -1, NodeAttachedUnknown)
	assert.EqualValues(t, 0, NodeAttached)
	assert.EqualValues(t, 2, NodeNotAttached)
	assert.EqualValues(t, 3, NodeDetached)
}

func TestReplSlotStatusValues(t *testing.T) {
	assert.EqualValues(t, 0, SlotNotFound)
	assert.EqualValues(t, 1, SlotNotPhysical)
	assert.EqualValues(t, 2, SlotInactive)
	assert.EqualValues(t, 3, SlotActive)
}

func TestNodeTypeStrings(t *testing.T) {
	tests := []struct {
		nt   NodeType
		want string
	}{
		{NodeTypePrimary, "primary"},
		{NodeTypeStandby, "standby"},
		{NodeTypeWitness, "witness"},
		{NodeTypeUnknown, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(tt.nt))
	}
}
