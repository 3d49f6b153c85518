package memory

import (
	"errors"
	"sync"

	nanoid "github.com/jaevor/go-nanoid"

	"github.com/vmeet/signaling/model"
)

const (
	passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordLength   = 6

	DefaultHistoryLimit = 500
)

var (
	ErrAlreadyInRoom = errors.New("connection is already in another room")
)

// MemStore is the room directory. Rooms, the reverse index, the
// password index and chat backlogs live under one mutex so membership
// and password state are always mutated together, and every snapshot
// handed out for broadcast is taken in the same critical section as
// the mutation that produced it.
type MemStore struct {
	mx        *sync.Mutex
	rooms     map[string]*model.Room
	byConn    map[string]string   // connection id -> room id
	passwords map[string]struct{} // live password-created room ids
	genToken  func() string
	histLimit int
}

type Config struct {
	// HistoryLimit caps each room's chat backlog, dropping the oldest
	// entries at append. Zero means unbounded.
	HistoryLimit int
}

func NewMemStore(cfg Config) (*MemStore, error) {
	gen, err := nanoid.CustomASCII(passwordAlphabet, passwordLength)
	if err != nil {
		return nil, err
	}
	return &MemStore{
		mx:        &sync.Mutex{},
		rooms:     make(map[string]*model.Room),
		byConn:    make(map[string]string),
		passwords: make(map[string]struct{}),
		genToken:  gen,
		histLimit: cfg.HistoryLimit,
	}, nil
}

// Join adds connID to roomID, creating the room on first join and
// recording the creator as admin. The returned member list and backlog
// are snapshots taken under the lock. Joining the same room twice is
// idempotent (AlreadyMember=true, no mutation); joining while a member
// of a different room fails.
func (ms *MemStore) Join(roomID, connID string) (model.JoinResult, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if cur, ok := ms.byConn[connID]; ok {
		if cur != roomID {
			return model.JoinResult{}, ErrAlreadyInRoom
		}
		room := ms.rooms[roomID]
		return model.JoinResult{
			IsAdmin:       room.Admin == connID,
			AlreadyMember: true,
			Members:       snapshot(room.Members),
		}, nil
	}

	room, ok := ms.rooms[roomID]
	if !ok {
		room = &model.Room{
			ID:    roomID,
			Admin: connID,
		}
		ms.rooms[roomID] = room
	}
	room.Members = append(room.Members, connID)
	ms.byConn[connID] = roomID

	return model.JoinResult{
		IsAdmin: room.Admin == connID,
		Members: snapshot(room.Members),
		Backlog: snapshotMessages(room.Messages),
	}, nil
}

// Leave resolves connID's room through the reverse index and removes
// it. When the last member departs, the room, its password entry and
// its backlog are deleted together. Unknown connections report ok=false.
func (ms *MemStore) Leave(connID string) (model.LeaveResult, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	roomID, ok := ms.byConn[connID]
	if !ok {
		return model.LeaveResult{}, false
	}
	delete(ms.byConn, connID)

	room := ms.rooms[roomID]
	for i, id := range room.Members {
		if id == connID {
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			break
		}
	}

	if len(room.Members) == 0 {
		delete(ms.rooms, roomID)
		delete(ms.passwords, roomID)
		return model.LeaveResult{RoomID: roomID, Destroyed: true}, true
	}
	return model.LeaveResult{
		RoomID:    roomID,
		Remaining: snapshot(room.Members),
	}, true
}

// RoomOf is an O(1) reverse-index lookup.
func (ms *MemStore) RoomOf(connID string) (string, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	roomID, ok := ms.byConn[connID]
	return roomID, ok
}

// AppendMessage resolves the sender's room, appends to its backlog and
// returns the member snapshot for fan-out. Senders not in any room
// report ok=false and nothing is stored.
func (ms *MemStore) AppendMessage(connID string, msg model.ChatMessage) (model.ChatBroadcast, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	roomID, ok := ms.byConn[connID]
	if !ok {
		return model.ChatBroadcast{}, false
	}
	room := ms.rooms[roomID]
	room.Messages = append(room.Messages, msg)
	if ms.histLimit > 0 && len(room.Messages) > ms.histLimit {
		room.Messages = room.Messages[len(room.Messages)-ms.histLimit:]
	}
	return model.ChatBroadcast{
		RoomID:  roomID,
		Members: snapshot(room.Members),
	}, true
}

// CreateRoom allocates a fresh password token, retrying until it does
// not collide with any live password room. The room itself is not
// created until the first websocket join.
func (ms *MemStore) CreateRoom() string {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	var password string
	for {
		password = ms.genToken()
		if _, taken := ms.passwords[password]; !taken {
			break
		}
	}
	ms.passwords[password] = struct{}{}
	return password
}

// ValidateRoom reports whether password names a live password room.
func (ms *MemStore) ValidateRoom(password string) bool {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	_, ok := ms.passwords[password]
	return ok
}

func snapshot(members []string) []string {
	out := make([]string, len(members))
	copy(out, members)
	return out
}

func snapshotMessages(msgs []model.ChatMessage) []model.ChatMessage {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]model.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
