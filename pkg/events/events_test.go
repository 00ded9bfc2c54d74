package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventPhaseEntered, Cluster: "ceph", Phase: "bootstrap"})

	for _, sub := range []Subscriber{s1, s2} {
		ev := receive(t, sub)
		assert.Equal(t, EventPhaseEntered, ev.Type)
		assert.Equal(t, "bootstrap", ev.Phase)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBrokerPreservesOrder(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	phases := []string{"initialize", "initial", "bootstrap"}
	for _, p := range phases {
		b.Publish(&Event{Type: EventPhaseEntering, Phase: p})
	}
	for _, p := range phases {
		assert.Equal(t, p, receive(t, sub).Phase)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestStopDrainsPublishedEvents(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	b.Publish(&Event{Type: EventRunDone})
	b.Start()
	b.Stop()

	require.Len(t, sub, 1)
	assert.Equal(t, EventRunDone, (<-sub).Type)

	// publishing after stop must not block
	b.Publish(&Event{Type: EventRunDone})
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Publish(&Event{Type: EventPhaseFailed})
	})
}
