package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	b := New()

	var order []string
	b.Subscribe(func(Event) { order = append(order, "first") })
	b.Subscribe(func(Event) { order = append(order, "second") })
	b.Subscribe(func(Event) { order = append(order, "third") })

	b.Publish(AuthChanged{})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	var got int
	stop := b.Subscribe(func(Event) { got++ })

	b.Publish(LoggedOut{})
	stop()
	b.Publish(LoggedOut{})

	assert.Equal(t, 1, got)
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	b := New()

	var got int
	stop := b.Subscribe(func(Event) { got++ })
	b.Subscribe(func(Event) { got += 10 })

	stop()
	stop()
	b.Publish(AuthChanged{})

	assert.Equal(t, 10, got, "remaining subscriber unaffected")
}

func TestBus_EventPayloadReachesSubscriber(t *testing.T) {
	b := New()

	var seen []Event
	b.Subscribe(func(e Event) { seen = append(seen, e) })

	b.Publish(ConsentChanged{Accepted: true})
	b.Publish(ConsentChanged{Accepted: false})
	b.Publish(LoggedOut{})

	require.Len(t, seen, 3)
	assert.Equal(t, ConsentChanged{Accepted: true}, seen[0])
	assert.Equal(t, ConsentChanged{Accepted: false}, seen[1])
	assert.Equal(t, LoggedOut{}, seen[2])
}

func TestBus_SubscribeDuringDispatchDoesNotReceiveCurrentEvent(t *testing.T) {
	b := New()

	var lateCalls int
	b.Subscribe(func(Event) {
		b.Subscribe(func(Event) { lateCalls++ })
	})

	b.Publish(AuthChanged{})
	assert.Equal(t, 0, lateCalls)

	b.Publish(AuthChanged{})
	assert.Equal(t, 1, lateCalls)
}
