package relay

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmeet/signaling/model"
)

func newRelay() *Relay {
	logger := zerolog.Nop()
	return New(&logger)
}

func TestRelay_SendToAttached(t *testing.T) {
	r := newRelay()
	wire := model.NewWire()
	r.Attach("a", wire)

	ok := r.Send(model.Event{Type: "offer", SRC: "b"}, "a")
	require.True(t, ok)

	ev := <-wire.TX
	assert.Equal(t, "offer", ev.Type)
	assert.Equal(t, "b", ev.SRC)
}

func TestRelay_SendToUnknownIsNoop(t *testing.T) {
	r := newRelay()

	ok := r.Send(model.Event{Type: "offer"}, "nobody")
	assert.False(t, ok)
}

func TestRelay_SendAfterDetach(t *testing.T) {
	r := newRelay()
	wire := model.NewWire()
	r.Attach("a", wire)
	r.Detach("a")

	ok := r.Send(model.Event{Type: "offer"}, "a")
	assert.False(t, ok)
	assert.Empty(t, wire.TX)
}

func TestRelay_BroadcastIncludesSender(t *testing.T) {
	r := newRelay()
	wires := map[string]model.Wire{
		"a": model.NewWire(),
		"b": model.NewWire(),
		"c": model.NewWire(),
	}
	for id, w := range wires {
		r.Attach(id, w)
	}

	r.Broadcast(model.Event{Type: "user-joined", SRC: "c"}, []string{"a", "b", "c"})

	for id, w := range wires {
		require.Len(t, w.TX, 1, "member %s must receive the broadcast", id)
		ev := <-w.TX
		assert.Equal(t, "c", ev.SRC)
	}
}

func TestRelay_BroadcastSkipsDetachedMembers(t *testing.T) {
	r := newRelay()
	wire := model.NewWire()
	r.Attach("a", wire)

	// "b" appears in the member snapshot but its wire is gone already
	r.Broadcast(model.Event{Type: "user-left", SRC: "b"}, []string{"a", "b"})

	require.Len(t, wire.TX, 1)
}

func TestRelay_SlowReceiverDropsEvent(t *testing.T) {
	r := newRelay()
	wire := model.Wire{
		RX: make(chan model.Event),
		TX: make(chan model.Event, 1),
	}
	r.Attach("a", wire)

	require.True(t, r.Send(model.Event{Type: "chat-message"}, "a"))
	assert.False(t, r.Send(model.Event{Type: "chat-message"}, "a"),
		"full TX buffer must drop, never block")
	assert.Len(t, wire.TX, 1)
}
