package events

import (
	"syscall"
	"testing"
	"time"

	"github.com/charliek/shoreman/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forward delivers events of type T into ch, dropping them when ch is full
func forward[T Event](b *Bus, ch chan<- T) func() {
	return Subscribe(b, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan ShutdownRequested, 1)
	unsub := Subscribe(bus, func(e ShutdownRequested) {
		received <- e
	})
	defer unsub()

	Publish(bus, ShutdownRequested{Signal: syscall.SIGINT})

	select {
	case got := <-received:
		assert.Equal(t, syscall.SIGINT, got.Signal)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()
	defer bus.Close()

	started := make(chan ProcessStarted, 1)
	exited := make(chan ProcessExited, 1)

	unsub1 := forward(bus, started)
	defer unsub1()
	unsub2 := forward(bus, exited)
	defer unsub2()

	Publish(bus, ProcessExited{Name: "web", PID: 42, Status: domain.ExitStatus{Code: 0}})

	select {
	case got := <-exited:
		assert.Equal(t, "web", got.Name)
		assert.Equal(t, 42, got.PID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case <-started:
		t.Fatal("ProcessStarted subscriber should not receive ProcessExited")
	case <-time.After(20 * time.Millisecond):
		// Expected
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan AllExited, 2)
	unsub := forward(bus, received)

	Publish(bus, AllExited{})
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	unsub()

	Publish(bus, AllExited{})
	select {
	case <-received:
		t.Fatal("should not receive events after unsubscribe")
	case <-time.After(20 * time.Millisecond):
		// Expected
	}
}

func TestBus_OrderPerSubscriber(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan ProcessStarted, 10)
	unsub := forward(bus, received)
	defer unsub()

	for i := 0; i < 5; i++ {
		Publish(bus, ProcessStarted{Process: domain.RunningProcess{Index: i}})
	}

	for i := 0; i < 5; i++ {
		select {
		case got := <-received:
			require.Equal(t, i, got.Process.Index)
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestEventTypes(t *testing.T) {
	types := map[uint32]bool{
		ShutdownRequested{}.Type(): true,
		ProcessStarted{}.Type():    true,
		ProcessExited{}.Type():     true,
		AllExited{}.Type():         true,
	}
	assert.Len(t, types, 4, "event type identifiers must be unique")
}
