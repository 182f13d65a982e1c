package presence

import (
	"sync"
)

// CloseSessionReplaced is the websocket close code sent to a connection
// that was superseded by a newer one for the same user.
const CloseSessionReplaced = 4001

// Conn is a live, multiplexed client connection. Send must not block: a
// connection that cannot take more data drops it or closes itself.
type Conn interface {
	ID() string
	UserID() string
	Send(payload []byte) error
	Close(code int, reason string)
}

// Registry is the process-wide routing table from users to their current
// connection and from conversations to subscribed connections. Only the
// most recent connection of a user is tracked.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]Conn               // connID -> conn
	userSessions map[string]string             // userID -> connID
	rooms        map[int64]map[string]Conn     // conversationID -> connID -> conn
	sessionRooms map[string]map[int64]struct{} // connID -> conversation ids
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[string]Conn),
		userSessions: make(map[string]string),
		rooms:        make(map[int64]map[string]Conn),
		sessionRooms: make(map[string]map[int64]struct{}),
	}
}

// Register makes conn the user's current connection. online is true when
// the user had no connection before. A replaced connection is closed after
// the swap; its own later Unregister is a no-op.
func (r *Registry) Register(conn Conn) (online bool) {
	var previous Conn

	r.mu.Lock()
	if existingID, ok := r.userSessions[conn.UserID()]; ok {
		previous = r.sessions[existingID]
		r.detachLocked(existingID)
	}
	r.sessions[conn.ID()] = conn
	r.userSessions[conn.UserID()] = conn.ID()
	r.mu.Unlock()

	if previous != nil && previous.ID() != conn.ID() {
		previous.Close(CloseSessionReplaced, "session replaced")
	}
	return previous == nil
}

// Unregister drops conn and every channel subscription it holds. offline is
// true exactly when conn was the user's tracked connection, so it is
// reported once per user going away.
func (r *Registry) Unregister(conn Conn) (offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[conn.ID()]; !ok {
		return false
	}
	current := r.userSessions[conn.UserID()] == conn.ID()
	r.detachLocked(conn.ID())
	return current
}

// Lookup returns the user's current connection.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.userSessions[userID]
	if !ok {
		return nil, false
	}
	conn, ok := r.sessions[id]
	return conn, ok
}

// Join subscribes conn to a conversation channel. It reports false when
// conn is no longer registered.
func (r *Registry) Join(conversationID int64, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[conn.ID()]; !ok {
		return false
	}

	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]Conn)
		r.rooms[conversationID] = room
	}
	room[conn.ID()] = conn

	memberships := r.sessionRooms[conn.ID()]
	if memberships == nil {
		memberships = make(map[int64]struct{})
		r.sessionRooms[conn.ID()] = memberships
	}
	memberships[conversationID] = struct{}{}
	return true
}

func (r *Registry) Leave(conversationID int64, conn Conn) {
	r.mu.Lock()
	r.leaveLocked(conversationID, conn.ID())
	r.mu.Unlock()
}

// Subscribed reports whether conn has joined the conversation channel.
func (r *Registry) Subscribed(conversationID int64, conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][conn.ID()]
	return ok
}

// Broadcast sends payload to every subscriber of the conversation and to
// the current connection of each listed user, once per connection. It
// returns how many connections accepted the payload.
func (r *Registry) Broadcast(conversationID int64, payload []byte, users ...string) int {
	r.mu.RLock()
	targets := make(map[string]Conn, len(r.rooms[conversationID])+len(users))
	for id, conn := range r.rooms[conversationID] {
		targets[id] = conn
	}
	for _, u := range users {
		if id, ok := r.userSessions[u]; ok {
			targets[id] = r.sessions[id]
		}
	}
	r.mu.RUnlock()

	return sendAll(targets, payload)
}

// SendToUser pushes payload to the user's current connection, if any.
func (r *Registry) SendToUser(userID string, payload []byte) bool {
	conn, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return conn.Send(payload) == nil
}

// BroadcastAll sends payload to every tracked connection except those of
// exceptUser.
func (r *Registry) BroadcastAll(payload []byte, exceptUser string) int {
	r.mu.RLock()
	targets := make(map[string]Conn, len(r.sessions))
	for id, conn := range r.sessions {
		if conn.UserID() != exceptUser {
			targets[id] = conn
		}
	}
	r.mu.RUnlock()

	return sendAll(targets, payload)
}

func (r *Registry) Online(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Count returns the number of tracked connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close terminates every tracked connection and clears the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]Conn, 0, len(r.sessions))
	for _, conn := range r.sessions {
		sessions = append(sessions, conn)
	}
	r.sessions = make(map[string]Conn)
	r.userSessions = make(map[string]string)
	r.rooms = make(map[int64]map[string]Conn)
	r.sessionRooms = make(map[string]map[int64]struct{})
	r.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(1001, "server shutdown")
	}
}

func sendAll(targets map[string]Conn, payload []byte) int {
	delivered := 0
	for _, conn := range targets {
		if conn.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) detachLocked(connID string) {
	conn, ok := r.sessions[connID]
	if !ok {
		return
	}
	delete(r.sessions, connID)

	if current, ok := r.userSessions[conn.UserID()]; ok && current == connID {
		delete(r.userSessions, conn.UserID())
	}

	for roomID := range r.sessionRooms[connID] {
		r.leaveLocked(roomID, connID)
	}
	delete(r.sessionRooms, connID)
}

func (r *Registry) leaveLocked(conversationID int64, connID string) {
	room := r.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
	if memberships, ok := r.sessionRooms[connID]; ok {
		delete(memberships, conversationID)
		if len(memberships) == 0 {
			delete(r.sessionRooms, connID)
		}
	}
}
