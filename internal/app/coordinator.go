package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okomel/huddle/internal/core"
	"github.com/okomel/huddle/internal/domain"
)

// cleanupGrace pads the deferred empty-room check past the reconnect window
// so a room is never deleted under a participant about to reconnect.
const cleanupGrace = 5 * time.Second

// Coordinator orchestrates the session lifecycle against the room store:
// create, join, connect, disconnect, reconnect, leave, plus the deferred
// cleanup and expiry paths. It owns the store's mutex; every mutation and
// the outbound frames it produces are enqueued under that lock, which is
// what keeps room broadcasts in commit order. Password hashing is the one
// slow step and always runs outside the lock, with all invariants
// re-checked at commit.
type Coordinator struct {
	mu      sync.Mutex
	store   *core.RoomStore
	hasher  *PasswordHasher
	limiter *MessageLimiter
	window  time.Duration

	// seams for tests
	now      func() time.Time
	schedule func(time.Duration, func())
	verify   func(password, hash string) bool
}

func NewCoordinator(store *core.RoomStore, hasher *PasswordHasher, limiter *MessageLimiter, reconnectWindow time.Duration) *Coordinator {
	return &Coordinator{
		store:    store,
		hasher:   hasher,
		limiter:  limiter,
		window:   reconnectWindow,
		now:      time.Now,
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		verify:   hasher.Verify,
	}
}

// Rooms replies with the public directory.
func (c *Coordinator) Rooms(conn core.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	send(conn, roomsListEvent{Type: "rooms_list", Rooms: c.store.Joinable()})
}

// JoinableSnapshot backs the REST directory endpoint.
func (c *Coordinator) JoinableSnapshot() []core.RoomSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Joinable()
}

// CreateRoom allocates a room with the caller as host and binds their
// connection. The room code is drawn at insertion time, after the hash
// completed, so the uniqueness check cannot go stale during the wait.
// One identity per connection: a socket already bound to a room is rejected.
func (c *Coordinator) CreateRoom(conn core.Conn, userName, roomName, password string) {
	creator, err := domain.NewParticipant(userName)
	if err != nil {
		send(conn, errorEvent{Type: "error", Message: err.Error()})
		return
	}

	var hash string
	if password != "" {
		if hash, err = c.hasher.Hash(password); err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Msg("password hash")
			send(conn, errorEvent{Type: "error", Message: "failed to create room"})
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, _, ok := c.store.ByConn(conn); ok {
		send(conn, errorEvent{Type: "error", Message: domain.ErrAlreadyInRoom.Error()})
		return
	}
	code := c.store.InsertRoom(creator, roomName, hash, c.now())
	if _, err := c.store.Bind(code, creator.ID, conn); err != nil {
		// unreachable: the room was inserted under this same lock hold
		log.Error().Err(err).Str("module", "app.coordinator").Msg("bind creator")
		return
	}
	send(conn, roomCreatedEvent{Type: "room_created", RoomCode: code, ParticipantID: creator.ID, IsHost: true})
	log.Info().Str("module", "app.coordinator").Str("room", string(code)).Str("name", userName).Msg("room created")
}

// Join admits a new participant. Checks run in order: room exists, password
// state, capacity. Verification suspends outside the lock, so existence and
// capacity are re-evaluated at commit; the room may have filled or died
// during the bcrypt wait.
func (c *Coordinator) Join(conn core.Conn, code domain.RoomCode, userName, password string) {
	p, err := domain.NewParticipant(userName)
	if err != nil {
		c.joinError(conn, err)
		return
	}

	c.mu.Lock()
	if _, _, ok := c.store.ByConn(conn); ok {
		c.mu.Unlock()
		c.joinError(conn, domain.ErrAlreadyInRoom)
		return
	}
	hash, err := c.store.PasswordHash(code)
	if err != nil {
		c.mu.Unlock()
		c.joinError(conn, err)
		return
	}
	if hash != "" && password == "" {
		c.mu.Unlock()
		c.joinError(conn, domain.ErrPasswordRequired)
		return
	}
	c.mu.Unlock()

	// A password on a passwordless room is ignored, not rejected.
	if hash != "" && !c.verify(password, hash) {
		c.joinError(conn, domain.ErrInvalidPassword)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, _, ok := c.store.ByConn(conn); ok {
		c.joinError(conn, domain.ErrAlreadyInRoom)
		return
	}
	// The code may name a different room by now; a verify against the old
	// hash says nothing about this one.
	commitHash, err := c.store.PasswordHash(code)
	if err != nil {
		c.joinError(conn, err)
		return
	}
	if commitHash != hash && commitHash != "" {
		if password == "" {
			c.joinError(conn, domain.ErrPasswordRequired)
		} else {
			c.joinError(conn, domain.ErrInvalidPassword)
		}
		return
	}
	if err := c.store.AddParticipant(code, p); err != nil {
		c.joinError(conn, err)
		return
	}
	if _, err := c.store.Bind(code, p.ID, conn); err != nil {
		c.joinError(conn, err)
		return
	}

	views := c.store.Participants(code)
	send(conn, joinedEvent{
		Type:          "joined",
		RoomCode:      code,
		ParticipantID: p.ID,
		IsHost:        c.store.IsHost(code, p.ID),
		Participants:  views,
		Chat:          c.store.Chat(code),
	})
	for _, peer := range c.store.LivePeers(code, p.ID) {
		send(peer.Conn, participantEvent{Type: "participant_joined", ID: p.ID, Name: p.Name, Participants: views})
	}
	log.Info().Str("module", "app.coordinator").Str("room", string(code)).Str("name", userName).Msg("participant joined")
}

func (c *Coordinator) joinError(conn core.Conn, err error) {
	send(conn, joinErrorEvent{
		Type:             "join_error",
		Message:          err.Error(),
		RequiresPassword: errors.Is(err, domain.ErrPasswordRequired),
	})
}

// Reconnect resumes a dropped identity within the window. The id, host
// status and chat history all survive; only the connection handle changes.
func (c *Coordinator) Reconnect(conn core.Conn, code domain.RoomCode, id domain.ParticipantID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, _, ok := c.store.ByConn(conn); ok {
		send(conn, reconnectErrorEvent{Type: "reconnect_error", Message: domain.ErrAlreadyInRoom.Error()})
		return
	}
	if err := c.store.ReconnectTarget(code, id, c.now(), c.window); err != nil {
		send(conn, reconnectErrorEvent{Type: "reconnect_error", Message: err.Error()})
		return
	}
	p, err := c.store.Bind(code, id, conn)
	if err != nil {
		send(conn, reconnectErrorEvent{Type: "reconnect_error", Message: err.Error()})
		return
	}

	send(conn, joinedEvent{
		Type:          "reconnected",
		RoomCode:      code,
		ParticipantID: id,
		IsHost:        c.store.IsHost(code, id),
		Participants:  c.store.Participants(code),
		Chat:          c.store.Chat(code),
	})
	for _, peer := range c.store.LivePeers(code, id) {
		send(peer.Conn, participantEvent{Type: "participant_reconnected", ID: id, Name: p.Name})
	}
	log.Info().Str("module", "app.coordinator").Str("room", string(code)).Str("id", string(id)).Msg("participant reconnected")
}

// Disconnect handles a transport drop: the participant keeps their slot, a
// reconnect window opens, and an empty-room check is scheduled past it.
func (c *Coordinator) Disconnect(conn core.Conn) {
	c.mu.Lock()
	code, p, ok := c.store.MarkDisconnected(conn, c.now())
	if !ok {
		c.mu.Unlock()
		return
	}
	for _, peer := range c.store.LivePeers(code, p.ID) {
		send(peer.Conn, participantEvent{Type: "participant_disconnected", ID: p.ID, Name: p.Name})
	}
	c.mu.Unlock()

	log.Info().Str("module", "app.coordinator").Str("room", string(code)).Str("id", string(p.ID)).Msg("participant disconnected")
	c.schedule(c.window+cleanupGrace, func() { c.cleanupIfDead(code) })
}

// cleanupIfDead re-checks live state at fire time: a reconnect in the
// meantime leaves the room occupied and the sweep untouched.
func (c *Coordinator) cleanupIfDead(code domain.RoomCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.store.HasRoom(code) || c.store.HasLive(code) {
		return
	}
	for _, id := range c.store.DeleteRoom(code) {
		c.limiter.Forget(id)
	}
}

// Leave is explicit departure: the slot is given up immediately, hosting is
// reassigned if needed, and an emptied room dies on the spot.
func (c *Coordinator) Leave(conn core.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, p, ok := c.store.ByConn(conn)
	if !ok {
		return
	}
	removed, newHost, empty, err := c.store.RemoveParticipant(code, p.ID)
	if err != nil {
		return
	}
	c.limiter.Forget(p.ID)

	if empty {
		c.store.DeleteRoom(code)
		return
	}
	for _, peer := range c.store.LivePeers(code, "") {
		send(peer.Conn, participantEvent{Type: "participant_left", ID: p.ID, Name: removed.Name, NewHostID: newHost})
	}
	// The leaver may have been the last live member, with only disconnected
	// slots left behind. Their earlier cleanup timers no-opped against a
	// then-occupied room, so arm a fresh one.
	if !c.store.HasLive(code) {
		c.schedule(c.window+cleanupGrace, func() { c.cleanupIfDead(code) })
	}
	log.Info().Str("module", "app.coordinator").Str("room", string(code)).Str("id", string(p.ID)).Msg("participant left")
}

// Chat appends to the room log and fans the message out to every live
// member, the author included.
func (c *Coordinator) Chat(conn core.Conn, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, p, ok := c.store.ByConn(conn)
	if !ok {
		send(conn, errorEvent{Type: "error", Message: domain.ErrUnknownParticipant.Error()})
		return
	}
	if !c.limiter.Allow(p.ID) {
		send(conn, errorEvent{Type: "error", Message: "too many messages"})
		return
	}
	msg, err := c.store.AppendChat(code, p.ID, text, c.now())
	if err != nil {
		send(conn, errorEvent{Type: "error", Message: err.Error()})
		return
	}
	for _, peer := range c.store.LivePeers(code, "") {
		send(peer.Conn, chatEvent{Type: "chat_message", ChatMessage: msg})
	}
}

// ExpireRooms deletes rooms older than ttl, occupied or not. Returns how
// many died, for the reaper's log line.
func (c *Coordinator) ExpireRooms(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	codes := c.store.ExpiredBefore(c.now().Add(-ttl))
	for _, code := range codes {
		for _, id := range c.store.DeleteRoom(code) {
			c.limiter.Forget(id)
		}
	}
	return len(codes)
}
