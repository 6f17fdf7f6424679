package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fableworks/taskcore/pkg/types"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received in time")
		return nil
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventTaskQueued, TaskID: "t1", Status: types.StatusQueued})

	ev := receive(t, sub)
	assert.Equal(t, EventTaskQueued, ev.Type)
	assert.Equal(t, "t1", ev.TaskID)
	assert.NotEmpty(t, ev.ID, "missing ids are filled in")
	assert.False(t, ev.Timestamp.IsZero())
}

func TestTaskFilter(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.SubscribeTask("t1")
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventTaskStarted, TaskID: "other"})
	b.Publish(&Event{Type: EventTaskCompleted, TaskID: "t1"})

	ev := receive(t, sub)
	assert.Equal(t, "t1", ev.TaskID)
	assert.Equal(t, EventTaskCompleted, ev.Type)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe() // never drained
	defer b.Unsubscribe(sub)

	// Well past the subscriber buffer; Publish must keep returning.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventTaskProgress, TaskID: "t1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}
