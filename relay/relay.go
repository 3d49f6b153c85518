package relay

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vmeet/signaling/model"
)

// Relay owns the wires of all live connections and fans events out to
// them. It is room-agnostic: broadcast targets come in as explicit
// member snapshots, and point-to-point sends address any attached
// connection. Delivery is fire-and-forget; a receiver whose TX buffer
// is full loses the event.
type Relay struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	wires  map[string]model.Wire
}

func New(logger *zerolog.Logger) *Relay {
	return &Relay{
		logger: logger.With().Str("component", "relay").Logger(),
		mx:     &sync.RWMutex{},
		wires:  make(map[string]model.Wire),
	}
}

func (r *Relay) Attach(connID string, wire model.Wire) {
	r.mx.Lock()
	r.wires[connID] = wire
	r.mx.Unlock()
	r.logger.Debug().Str("connID", connID).Msg("wire attached")
}

func (r *Relay) Detach(connID string) {
	r.mx.Lock()
	delete(r.wires, connID)
	r.mx.Unlock()
	r.logger.Debug().Str("connID", connID).Msg("wire detached")
}

// Send delivers ev to a single connection. An unknown or saturated
// destination drops the event, reported through the return value.
func (r *Relay) Send(ev model.Event, dst string) bool {
	r.mx.RLock()
	wire, ok := r.wires[dst]
	r.mx.RUnlock()

	if !ok {
		r.logger.Debug().
			Str("dst", dst).
			Str("type", ev.Type).
			Str("src", ev.SRC).
			Msg("cannot forward, dst not found")
		return false
	}
	return r.push(ev, dst, wire)
}

// Broadcast delivers ev to every listed member, sender included.
func (r *Relay) Broadcast(ev model.Event, members []string) {
	var sent bool
	for _, dst := range members {
		if r.Send(ev, dst) {
			sent = true
		}
	}
	if !sent {
		r.logger.Debug().
			Str("type", ev.Type).
			Str("src", ev.SRC).
			Msg("broadcast did not reach anyone")
	}
}

func (r *Relay) push(ev model.Event, dst string, wire model.Wire) bool {
	select {
	case wire.TX <- ev:
		return true
	default:
		r.logger.Warn().
			Str("dst", dst).
			Str("type", ev.Type).
			Msg("slow receiver, event dropped")
		return false
	}
}
