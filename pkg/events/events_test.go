package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{NodeID: 1, Type: EventStandbyPromote, Successful: true})

	select {
	case ev := <-sub:
		assert.Equal(t, EventStandbyPromote, ev.Type)
		assert.Equal(t, int32(1), ev.NodeID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishSetsTimestampWhenUnset(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	ev := &Event{Type: EventNodeRejoin}
	require.True(t, ev.Timestamp.IsZero())
	b.Publish(ev)

	got := <-sub
	assert.False(t, got.Timestamp.IsZero())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	assert.Equal(t, 0, b.SubscriberCount())
}

func TestSubscriberCount(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Unsubscribe(sub1)
	assert.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub2)
}
