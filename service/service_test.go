package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmeet/signaling/model"
	"github.com/vmeet/signaling/registry"
	"github.com/vmeet/signaling/relay"
	"github.com/vmeet/signaling/storage/memory"
)

const (
	recvTimeout    = 2 * time.Second
	noEventTimeout = 100 * time.Millisecond
)

type env struct {
	t   *testing.T
	svc *Service
	ctx context.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zerolog.Nop()
	ms, err := memory.NewMemStore(memory.Config{})
	require.NoError(t, err)

	svc := NewService(Config{
		RoomStore: ms,
		Relay:     relay.New(&logger),
		Registry:  registry.New(),
		Logger:    &logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &env{t: t, svc: svc, ctx: ctx}
}

// connect opens a session and consumes the initial connected event.
func (e *env) connect(id string) model.Wire {
	e.t.Helper()
	wire := model.NewWire()
	require.NoError(e.t, e.svc.CreateSession(e.ctx, id, wire))

	ev := e.recv(wire)
	require.Equal(e.t, model.EventTypeConnected, ev.Type)
	require.Equal(e.t, id, ev.Payload)
	return wire
}

func (e *env) send(wire model.Wire, ev model.Event) {
	e.t.Helper()
	select {
	case wire.RX <- ev:
	case <-time.After(recvTimeout):
		e.t.Fatalf("timed out sending %s event", ev.Type)
	}
}

func (e *env) recv(wire model.Wire) model.Event {
	e.t.Helper()
	select {
	case ev := <-wire.TX:
		return ev
	case <-time.After(recvTimeout):
		e.t.Fatalf("timed out waiting for event")
		return model.Event{}
	}
}

func (e *env) noEvent(wire model.Wire) {
	e.t.Helper()
	select {
	case ev := <-wire.TX:
		e.t.Fatalf("unexpected %s event", ev.Type)
	case <-time.After(noEventTimeout):
	}
}

func (e *env) join(wire model.Wire, roomID string) {
	e.send(wire, model.Event{Type: model.EventTypeJoinCall, Room: roomID})
}

func TestService_JoinFlow(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")
	wB := e.connect("B")

	e.join(wA, "r1")
	ev := e.recv(wA)
	assert.Equal(t, model.EventTypeSetAdmin, ev.Type)
	assert.Equal(t, true, ev.Payload)
	ev = e.recv(wA)
	assert.Equal(t, model.EventTypeUserJoined, ev.Type)
	assert.Equal(t, "A", ev.SRC)
	assert.Equal(t, []string{"A"}, ev.Members)

	e.join(wB, "r1")
	ev = e.recv(wB)
	assert.Equal(t, model.EventTypeSetAdmin, ev.Type)
	assert.Equal(t, false, ev.Payload)
	ev = e.recv(wB)
	assert.Equal(t, model.EventTypeUserJoined, ev.Type)
	assert.Equal(t, "B", ev.SRC)
	assert.Equal(t, []string{"A", "B"}, ev.Members)

	// the existing member sees the arrival too
	ev = e.recv(wA)
	assert.Equal(t, model.EventTypeUserJoined, ev.Type)
	assert.Equal(t, "B", ev.SRC)
	assert.Equal(t, []string{"A", "B"}, ev.Members)
}

func TestService_ChatBroadcastAndReplay(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")
	wB := e.connect("B")

	e.join(wA, "r1")
	e.recv(wA) // set-admin
	e.recv(wA) // user-joined
	e.join(wB, "r1")
	e.recv(wB)
	e.recv(wB)
	e.recv(wA) // B arrival

	e.send(wA, model.Event{
		Type:   model.EventTypeSendMessage,
		Sender: "Alice",
		Body:   "hi",
	})
	for _, w := range []model.Wire{wA, wB} {
		ev := e.recv(w)
		assert.Equal(t, model.EventTypeChatMessage, ev.Type)
		assert.Equal(t, "A", ev.SRC)
		assert.Equal(t, "Alice", ev.Sender)
		assert.Equal(t, "hi", ev.Body)
	}

	// late joiner gets the backlog after the membership events
	wC := e.connect("C")
	e.join(wC, "r1")
	ev := e.recv(wC)
	assert.Equal(t, model.EventTypeSetAdmin, ev.Type)
	ev = e.recv(wC)
	require.Equal(t, model.EventTypeUserJoined, ev.Type)
	ev = e.recv(wC)
	assert.Equal(t, model.EventTypeChatMessage, ev.Type)
	assert.Equal(t, "hi", ev.Body)
	assert.Equal(t, "Alice", ev.Sender)
	assert.Equal(t, "A", ev.SRC)
	e.noEvent(wC)
}

func TestService_ChatIsSanitized(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")
	e.join(wA, "r1")
	e.recv(wA)
	e.recv(wA)

	e.send(wA, model.Event{
		Type:   model.EventTypeChatMessage,
		Sender: "<b>Alice</b>",
		Body:   "  <i>hello</i> there ",
	})
	ev := e.recv(wA)
	assert.Equal(t, "Alice", ev.Sender)
	assert.Equal(t, "hello there", ev.Body)
}

func TestService_ChatFromRoomlessSenderDropped(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")

	e.send(wA, model.Event{
		Type:   model.EventTypeChatMessage,
		Sender: "Alice",
		Body:   "anyone here?",
	})
	e.noEvent(wA)
}

func TestService_SignalRelayIgnoresRooms(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")
	wB := e.connect("B")
	wX := e.connect("X")

	e.join(wA, "r1")
	e.recv(wA)
	e.recv(wA)
	e.join(wB, "r1")
	e.recv(wB)
	e.recv(wB)
	e.recv(wA)
	e.join(wX, "r2")
	e.recv(wX)
	e.recv(wX)

	payload := map[string]any{"sdp": "v=0 fake offer"}
	e.send(wA, model.Event{
		Type:    model.EventTypeOffer,
		DST:     "X",
		Payload: payload,
	})

	// delivered to the named target only, even across rooms
	ev := e.recv(wX)
	assert.Equal(t, model.EventTypeOffer, ev.Type)
	assert.Equal(t, "A", ev.SRC)
	assert.Equal(t, payload, ev.Payload)
	e.noEvent(wB)
	e.noEvent(wA)
}

func TestService_SignalToUnknownTargetVanishes(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")

	e.send(wA, model.Event{
		Type:    model.EventTypeICECandidate,
		DST:     "ghost",
		Payload: "candidate:1",
	})
	e.noEvent(wA)
}

func TestService_SignalWithoutTargetDropped(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")

	e.send(wA, model.Event{Type: model.EventTypeAnswer, Payload: "x"})
	e.noEvent(wA)
}

func TestService_DisconnectScenario(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")
	wB := e.connect("B")
	wC := e.connect("C")

	e.join(wA, "r1")
	e.recv(wA)
	e.recv(wA)
	e.join(wB, "r1")
	e.recv(wB)
	e.recv(wB)
	e.recv(wA)
	e.join(wC, "r1")
	e.recv(wC)
	e.recv(wC)
	e.recv(wA)
	e.recv(wB)

	require.NoError(t, e.svc.DeleteSession(e.ctx, "B"))
	for _, w := range []model.Wire{wA, wC} {
		ev := e.recv(w)
		assert.Equal(t, model.EventTypeUserLeft, ev.Type)
		assert.Equal(t, "B", ev.SRC)
	}
	e.noEvent(wB)

	// reconciliation fires once per connection lifetime
	require.NoError(t, e.svc.DeleteSession(e.ctx, "B"))
	e.noEvent(wA)
	e.noEvent(wC)

	require.NoError(t, e.svc.DeleteSession(e.ctx, "C"))
	ev := e.recv(wA)
	assert.Equal(t, model.EventTypeUserLeft, ev.Type)
	assert.Equal(t, "C", ev.SRC)

	require.NoError(t, e.svc.DeleteSession(e.ctx, "A"))

	// the room is gone: the identifier starts fresh
	wD := e.connect("D")
	e.join(wD, "r1")
	ev = e.recv(wD)
	assert.Equal(t, model.EventTypeSetAdmin, ev.Type)
	assert.Equal(t, true, ev.Payload)
	ev = e.recv(wD)
	assert.Equal(t, model.EventTypeUserJoined, ev.Type)
	assert.Equal(t, []string{"D"}, ev.Members)
	e.noEvent(wD)
}

func TestService_DisconnectWithoutJoin(t *testing.T) {
	e := newEnv(t)
	e.connect("A")
	wB := e.connect("B")
	e.join(wB, "r1")
	e.recv(wB)
	e.recv(wB)

	require.NoError(t, e.svc.DeleteSession(e.ctx, "A"))
	e.noEvent(wB)
}

func TestService_DuplicateJoinResyncsCallerOnly(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")
	wB := e.connect("B")

	e.join(wA, "r1")
	e.recv(wA)
	e.recv(wA)
	e.join(wB, "r1")
	e.recv(wB)
	e.recv(wB)
	e.recv(wA)

	e.send(wA, model.Event{Type: model.EventTypeSendMessage, Sender: "Alice", Body: "hi"})
	e.recv(wA)
	e.recv(wB)

	e.join(wA, "r1")
	ev := e.recv(wA)
	assert.Equal(t, model.EventTypeSetAdmin, ev.Type)
	assert.Equal(t, true, ev.Payload)
	ev = e.recv(wA)
	assert.Equal(t, model.EventTypeUserJoined, ev.Type)
	assert.Equal(t, []string{"A", "B"}, ev.Members)
	e.noEvent(wA) // no second replay
	e.noEvent(wB) // nothing changed for the rest of the room
}

func TestService_UnknownEventTypeDropped(t *testing.T) {
	e := newEnv(t)
	wA := e.connect("A")

	e.send(wA, model.Event{Type: "mystery"})
	e.noEvent(wA)
}
