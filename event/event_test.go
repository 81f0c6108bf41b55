package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishDeliversInOrder(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(func(ev Event) { got = append(got, ev) })

	bus.Publish(FeedUpdate{FeedOrder: 3, InProgress: true})
	bus.Publish(FeedUpdate{FeedOrder: 3, InProgress: false})
	bus.Publish(NewStories{Count: 7})

	assert.Equal(t, []Event{
		FeedUpdate{FeedOrder: 3, InProgress: true},
		FeedUpdate{FeedOrder: 3, InProgress: false},
		NewStories{Count: 7},
	}, got)
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()

	first, second := 0, 0
	bus.Subscribe(func(Event) { first++ })
	bus.Subscribe(func(Event) { second++ })

	bus.Publish(FeedListChanged{})
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestBus_NilBusDropsEvents(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() {
		bus.Publish(StoryListChanged{})
	})
}
