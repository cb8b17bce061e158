package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func priceEvent(topic schema.TopicID, price float64) schema.Event {
	return schema.Event{
		Type:    schema.EventPriceUpdate,
		TopicID: topic,
		Ts:      time.Now().UnixNano(),
		PriceUpdate: &schema.PriceUpdate{
			TopicID: topic,
			Price:   price,
		},
	}
}

func TestPublishRoutesByTopic(t *testing.T) {
	p := NewPublisher(4)
	defer p.Close()

	a, cancelA := p.Subscribe(1)
	defer cancelA()
	b, cancelB := p.Subscribe(2)
	defer cancelB()

	p.Publish(priceEvent(1, 2.5))

	select {
	case e := <-a:
		require.NotNil(t, e.PriceUpdate)
		assert.Equal(t, 2.5, e.PriceUpdate.Price)
	default:
		t.Fatal("subscriber a should have received the event")
	}

	select {
	case <-b:
		t.Fatal("subscriber b should not receive topic 1 events")
	default:
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	p := NewPublisher(2)
	defer p.Close()

	_, cancel := p.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		p.Publish(priceEvent(1, float64(i)))
	}

	assert.Equal(t, uint64(2), p.Delivered())
	assert.Equal(t, uint64(3), p.Dropped())
}

func TestCancelClosesChannel(t *testing.T) {
	p := NewPublisher(4)
	defer p.Close()

	ch, cancel := p.Subscribe(1)
	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok)

	// publishing after cancel must not panic or count delivery
	p.Publish(priceEvent(1, 1))
	assert.Equal(t, uint64(0), p.Delivered())
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	p := NewPublisher(4)

	ch, cancel := p.Subscribe(1)
	defer cancel()

	p.Close()

	_, ok := <-ch
	assert.False(t, ok)

	sub, cancel2 := p.Subscribe(1)
	defer cancel2()
	_, ok = <-sub
	assert.False(t, ok, "subscribe after close returns a closed channel")
}
