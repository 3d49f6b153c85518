package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"

	"github.com/vmeet/signaling/model"
)

var (
	ErrJoin = errors.New("unable to join room")
)

type (
	RoomStore interface {
		Join(roomID, connID string) (model.JoinResult, error)
		Leave(connID string) (model.LeaveResult, bool)
		AppendMessage(connID string, msg model.ChatMessage) (model.ChatBroadcast, bool)
		CreateRoom() string
		ValidateRoom(password string) bool
	}

	Relay interface {
		Attach(connID string, wire model.Wire)
		Detach(connID string)
		Send(ev model.Event, dst string) bool
		Broadcast(ev model.Event, members []string)
	}

	Registry interface {
		Register(id string)
		Unregister(id string) (time.Duration, bool)
	}

	// Service is the signaling router. One goroutine per connection
	// consumes that connection's events in arrival order; mu serializes
	// room-mutating handlers so every directory mutation and the
	// broadcast it triggers form a single atomic step.
	Service struct {
		store    RoomStore
		relay    Relay
		registry Registry
		logger   zerolog.Logger
		mu       sync.Mutex
	}

	Config struct {
		RoomStore RoomStore
		Relay     Relay
		Registry  Registry
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:    cfg.RoomStore,
		relay:    cfg.Relay,
		registry: cfg.Registry,
		logger:   cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// CreateSession registers a new connection, attaches its wire and
// starts consuming its inbound events. The connection learns its
// server-assigned id from the initial connected event; it needs it to
// address negotiation targets.
func (svc *Service) CreateSession(ctx context.Context, connID string, wire model.Wire) error {
	svc.registry.Register(connID)
	svc.relay.Attach(connID, wire)
	svc.relay.Send(model.Event{
		Type:    model.EventTypeConnected,
		Payload: connID,
	}, connID)

	svc.logger.Debug().Str("connID", connID).Msg("session created")

	go svc.consume(ctx, connID, wire.RX)
	return nil
}

// DeleteSession reconciles a closed connection: unregister, detach,
// leave the room and notify whoever remains. The registry guards it so
// repeated transport-close reports reconcile at most once.
func (svc *Service) DeleteSession(_ context.Context, connID string) error {
	duration, known := svc.registry.Unregister(connID)
	if !known {
		return nil
	}
	svc.relay.Detach(connID)

	svc.mu.Lock()
	res, ok := svc.store.Leave(connID)
	if ok && !res.Destroyed {
		svc.relay.Broadcast(model.Event{
			Type: model.EventTypeUserLeft,
			SRC:  connID,
		}, res.Remaining)
	}
	svc.mu.Unlock()

	ev := svc.logger.Debug().
		Str("connID", connID).
		Dur("sessionDuration", duration)
	if ok {
		ev = ev.Str("roomID", res.RoomID).Bool("roomDestroyed", res.Destroyed)
	}
	ev.Msg("session deleted")
	return nil
}

// CreateRoom allocates a password-protected room identifier. The room
// itself materializes on the first websocket join.
func (svc *Service) CreateRoom() string {
	password := svc.store.CreateRoom()
	svc.logger.Debug().Str("roomID", password).Msg("password room created")
	return password
}

// ValidateRoom reports whether a password names a live room.
func (svc *Service) ValidateRoom(password string) bool {
	return svc.store.ValidateRoom(password)
}

func (svc *Service) consume(ctx context.Context, connID string, rx <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-rx:
			svc.dispatch(connID, ev)
		}
	}
}

func (svc *Service) dispatch(connID string, ev model.Event) {
	if svc.logger.GetLevel() <= zerolog.TraceLevel {
		svc.logger.Trace().Str("connID", connID).Msg(spew.Sdump(ev))
	}

	switch ev.Type {
	case model.EventTypeJoinRoom, model.EventTypeJoinCall:
		svc.handleJoin(connID, ev.Room)
	case model.EventTypeOffer, model.EventTypeAnswer,
		model.EventTypeICECandidate, model.EventTypeSignal:
		svc.handleSignal(connID, ev)
	case model.EventTypeChatMessage, model.EventTypeSendMessage:
		svc.handleChat(connID, ev)
	default:
		svc.logger.Debug().
			Str("connID", connID).
			Str("type", ev.Type).
			Msg("unknown event type, dropped")
	}
}

func (svc *Service) handleJoin(connID, roomID string) {
	if roomID == "" {
		svc.logger.Debug().Str("connID", connID).Msg("join without room id, dropped")
		return
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	res, err := svc.store.Join(roomID, connID)
	if err != nil {
		svc.logger.Debug().
			Err(errors.Join(ErrJoin, err)).
			Str("connID", connID).
			Str("roomID", roomID).
			Msg("join rejected")
		return
	}

	svc.relay.Send(model.Event{
		Type:    model.EventTypeSetAdmin,
		Payload: res.IsAdmin,
	}, connID)

	joined := model.Event{
		Type:    model.EventTypeUserJoined,
		SRC:     connID,
		Members: res.Members,
	}
	if res.AlreadyMember {
		// re-join of a member: resync the caller, nothing changed for
		// the rest of the room
		svc.relay.Send(joined, connID)
		return
	}
	svc.relay.Broadcast(joined, res.Members)

	for _, msg := range res.Backlog {
		svc.relay.Send(model.Event{
			Type:   model.EventTypeChatMessage,
			SRC:    msg.From,
			Sender: msg.Sender,
			Body:   msg.Body,
		}, connID)
	}

	svc.logger.Debug().
		Str("connID", connID).
		Str("roomID", roomID).
		Bool("isAdmin", res.IsAdmin).
		Int("members", len(res.Members)).
		Msg("joined room")
}

// handleSignal relays a negotiation payload to the requested target,
// annotated with the sender. The target is trusted as supplied; no
// room membership check is made, an unknown target just means no
// recipient.
func (svc *Service) handleSignal(connID string, ev model.Event) {
	if ev.DST == "" {
		svc.logger.Debug().
			Str("connID", connID).
			Str("type", ev.Type).
			Msg("signal without dst, dropped")
		return
	}
	ev.SRC = connID
	ev.Room = ""
	svc.relay.Send(ev, ev.DST)
}

func (svc *Service) handleChat(connID string, ev model.Event) {
	msg := model.ChatMessage{
		Sender: sanitize(ev.Sender),
		Body:   sanitize(ev.Body),
		From:   connID,
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	bc, ok := svc.store.AppendMessage(connID, msg)
	if !ok {
		// sender is not in any room; drop without surfacing an error
		svc.logger.Debug().Str("connID", connID).Msg("chat from roomless sender, dropped")
		return
	}
	svc.relay.Broadcast(model.Event{
		Type:   model.EventTypeChatMessage,
		SRC:    connID,
		Sender: msg.Sender,
		Body:   msg.Body,
	}, bc.Members)
}
