package core

import (
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okomel/huddle/internal/domain"
)

// ChatHistoryLimit caps a room's chat log; the oldest entry is evicted first.
const ChatHistoryLimit = 100

type member struct {
	p    *domain.Participant
	conn Conn // nil while disconnected
}

type roomState struct {
	meta    *domain.Room
	members map[domain.ParticipantID]*member
	order   []domain.ParticipantID // join order; host failover picks order[0]
	chat    []domain.ChatMessage
}

// DisconnectEntry records a dropped participant awaiting reconnection.
type DisconnectEntry struct {
	Code           domain.RoomCode
	DisconnectedAt time.Time
}

// ParticipantView is a read-only view for clients (no transport fields).
type ParticipantView struct {
	ID        domain.ParticipantID `json:"id"`
	Name      string               `json:"name"`
	Connected bool                 `json:"connected"`
	IsHost    bool                 `json:"isHost"`
}

// Peer pairs a participant identity with its current transport endpoint.
// Conn is resolved at lookup time, so a re-bound connection is picked up
// transparently by the relay.
type Peer struct {
	ID   domain.ParticipantID
	Name string
	Conn Conn
}

// RoomSummary is one entry of the public room directory.
type RoomSummary struct {
	Code            domain.RoomCode `json:"code"`
	Name            string          `json:"name"`
	HasPassword     bool            `json:"hasPassword"`
	Participants    int             `json:"participantCount"`
	MaxParticipants int             `json:"maxParticipants"`
	CreatedAt       int64           `json:"createdAt"`
}

// RoomStore is the authoritative in-memory registry of rooms, participants
// and the disconnected-participant window. It holds no lock of its own: the
// session coordinator owns the store and serializes every call, including
// the outbound enqueues that must stay ordered with the mutation.
type RoomStore struct {
	max   int
	codes *CodeGenerator

	rooms         map[domain.RoomCode]*roomState
	byParticipant map[domain.ParticipantID]domain.RoomCode
	byConn        map[Conn]domain.ParticipantID
	disconnected  map[domain.ParticipantID]DisconnectEntry
}

func NewRoomStore(maxParticipants int, codes *CodeGenerator) *RoomStore {
	return &RoomStore{
		max:           maxParticipants,
		codes:         codes,
		rooms:         make(map[domain.RoomCode]*roomState),
		byParticipant: make(map[domain.ParticipantID]domain.RoomCode),
		byConn:        make(map[Conn]domain.ParticipantID),
		disconnected:  make(map[domain.ParticipantID]DisconnectEntry),
	}
}

func (s *RoomStore) MaxParticipants() int { return s.max }

// InsertRoom allocates a room for creator and returns its code. The code is
// drawn here, at insertion time, so a draw that went stale while the caller
// was hashing the password can never collide with a live room.
func (s *RoomStore) InsertRoom(creator *domain.Participant, name, passwordHash string, now time.Time) domain.RoomCode {
	var code domain.RoomCode
	for {
		code = s.codes.Next()
		if _, taken := s.rooms[code]; !taken {
			break
		}
	}

	s.rooms[code] = &roomState{
		meta: &domain.Room{
			Code:         code,
			Name:         domain.RoomNameFor(creator.Name, name),
			PasswordHash: passwordHash,
			CreatedAt:    now,
			HostID:       creator.ID,
		},
		members: map[domain.ParticipantID]*member{creator.ID: {p: creator}},
		order:   []domain.ParticipantID{creator.ID},
	}
	s.byParticipant[creator.ID] = code
	return code
}

func (s *RoomStore) Room(code domain.RoomCode) (*domain.Room, bool) {
	rs, ok := s.rooms[code]
	if !ok {
		return nil, false
	}
	return rs.meta, true
}

// PasswordHash exposes the stored hash for out-of-lock verification.
func (s *RoomStore) PasswordHash(code domain.RoomCode) (string, error) {
	rs, ok := s.rooms[code]
	if !ok {
		return "", domain.ErrRoomNotFound
	}
	return rs.meta.PasswordHash, nil
}

// AddParticipant admits p into the room. Callers re-run this after any
// asynchronous step: existence and capacity are checked here, at commit.
func (s *RoomStore) AddParticipant(code domain.RoomCode, p *domain.Participant) error {
	rs, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if len(rs.members) >= s.max {
		return domain.ErrRoomFull
	}
	rs.members[p.ID] = &member{p: p}
	rs.order = append(rs.order, p.ID)
	s.byParticipant[p.ID] = code
	return nil
}

// RemoveParticipant handles explicit departure. If the host left and others
// remain, hosting moves to the oldest remaining participant by join order.
func (s *RoomStore) RemoveParticipant(code domain.RoomCode, id domain.ParticipantID) (removed *domain.Participant, newHost domain.ParticipantID, empty bool, err error) {
	rs, ok := s.rooms[code]
	if !ok {
		return nil, "", false, domain.ErrRoomNotFound
	}
	m, ok := rs.members[id]
	if !ok {
		return nil, "", false, domain.ErrUnknownParticipant
	}

	if m.conn != nil {
		delete(s.byConn, m.conn)
	}
	delete(rs.members, id)
	delete(s.byParticipant, id)
	delete(s.disconnected, id)
	if i := slices.Index(rs.order, id); i >= 0 {
		rs.order = slices.Delete(rs.order, i, i+1)
	}

	if len(rs.members) == 0 {
		return m.p, "", true, nil
	}
	if rs.meta.HostID == id {
		rs.meta.HostID = rs.order[0]
		log.Info().Str("module", "core.store").Str("room", string(code)).Str("host", string(rs.meta.HostID)).Msg("host reassigned")
	}
	return m.p, rs.meta.HostID, false, nil
}

// Bind attaches a live connection to a participant and clears any pending
// reconnect entry. A previous handle for the same identity is unindexed so a
// stale socket's eventual disconnect becomes a no-op.
func (s *RoomStore) Bind(code domain.RoomCode, id domain.ParticipantID, conn Conn) (*domain.Participant, error) {
	rs, ok := s.rooms[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	m, ok := rs.members[id]
	if !ok {
		return nil, domain.ErrUnknownParticipant
	}
	if m.conn != nil {
		delete(s.byConn, m.conn)
	}
	m.conn = conn
	s.byConn[conn] = id
	delete(s.disconnected, id)
	return m.p, nil
}

// MarkDisconnected clears the handle owned by conn and opens a reconnect
// window for its participant. Returns false when conn owns nothing, e.g.
// after an explicit leave or a re-bind by a newer socket.
func (s *RoomStore) MarkDisconnected(conn Conn, now time.Time) (domain.RoomCode, *domain.Participant, bool) {
	id, ok := s.byConn[conn]
	if !ok {
		return "", nil, false
	}
	code := s.byParticipant[id]
	m := s.rooms[code].members[id]

	delete(s.byConn, conn)
	m.conn = nil
	s.disconnected[id] = DisconnectEntry{Code: code, DisconnectedAt: now}
	return code, m.p, true
}

// ByConn resolves the participant owning a live connection.
func (s *RoomStore) ByConn(conn Conn) (domain.RoomCode, *domain.Participant, bool) {
	id, ok := s.byConn[conn]
	if !ok {
		return "", nil, false
	}
	code := s.byParticipant[id]
	return code, s.rooms[code].members[id].p, true
}

// ReconnectTarget validates a reconnection attempt against the registry.
// A lapsed window purges the entry; the participant stays in the room until
// leave or cleanup removes it.
func (s *RoomStore) ReconnectTarget(code domain.RoomCode, id domain.ParticipantID, now time.Time, window time.Duration) error {
	entry, ok := s.disconnected[id]
	if !ok || entry.Code != code {
		return domain.ErrUnknownParticipant
	}
	if now.Sub(entry.DisconnectedAt) > window {
		delete(s.disconnected, id)
		return domain.ErrReconnectExpired
	}
	return nil
}

// Participants lists the room in join order, host flag resolved.
func (s *RoomStore) Participants(code domain.RoomCode) []ParticipantView {
	rs, ok := s.rooms[code]
	if !ok {
		return nil
	}
	out := make([]ParticipantView, 0, len(rs.order))
	for _, id := range rs.order {
		m := rs.members[id]
		out = append(out, ParticipantView{
			ID:        id,
			Name:      m.p.Name,
			Connected: m.conn != nil,
			IsHost:    id == rs.meta.HostID,
		})
	}
	return out
}

// LivePeers lists currently-connected members, excluding one id.
func (s *RoomStore) LivePeers(code domain.RoomCode, excluding domain.ParticipantID) []Peer {
	rs, ok := s.rooms[code]
	if !ok {
		return nil
	}
	out := make([]Peer, 0, len(rs.order))
	for _, id := range rs.order {
		m := rs.members[id]
		if id == excluding || m.conn == nil {
			continue
		}
		out = append(out, Peer{ID: id, Name: m.p.Name, Conn: m.conn})
	}
	return out
}

// Resolve looks up one member by id; Conn is nil while it is disconnected.
func (s *RoomStore) Resolve(code domain.RoomCode, id domain.ParticipantID) (Peer, error) {
	rs, ok := s.rooms[code]
	if !ok {
		return Peer{}, domain.ErrRoomNotFound
	}
	m, ok := rs.members[id]
	if !ok {
		return Peer{}, domain.ErrUnknownParticipant
	}
	return Peer{ID: id, Name: m.p.Name, Conn: m.conn}, nil
}

func (s *RoomStore) IsHost(code domain.RoomCode, id domain.ParticipantID) bool {
	rs, ok := s.rooms[code]
	return ok && rs.meta.HostID == id
}

// AppendChat appends to the bounded log, evicting the oldest entry past the
// cap. Fails if the room or the author is already gone.
func (s *RoomStore) AppendChat(code domain.RoomCode, authorID domain.ParticipantID, text string, now time.Time) (domain.ChatMessage, error) {
	rs, ok := s.rooms[code]
	if !ok {
		return domain.ChatMessage{}, domain.ErrRoomNotFound
	}
	m, ok := rs.members[authorID]
	if !ok {
		return domain.ChatMessage{}, domain.ErrUnknownParticipant
	}

	msg := domain.NewChatMessage(m.p, text, now)
	rs.chat = append(rs.chat, msg)
	if len(rs.chat) > ChatHistoryLimit {
		rs.chat = rs.chat[1:]
	}
	return msg, nil
}

// Chat returns a copy of the room's log, oldest first.
func (s *RoomStore) Chat(code domain.RoomCode) []domain.ChatMessage {
	rs, ok := s.rooms[code]
	if !ok {
		return nil
	}
	return slices.Clone(rs.chat)
}

// HasLive reports whether any member still holds a connection.
func (s *RoomStore) HasLive(code domain.RoomCode) bool {
	rs, ok := s.rooms[code]
	if !ok {
		return false
	}
	for _, m := range rs.members {
		if m.conn != nil {
			return true
		}
	}
	return false
}

func (s *RoomStore) HasRoom(code domain.RoomCode) bool {
	_, ok := s.rooms[code]
	return ok
}

// Joinable derives the public directory: rooms someone could actually enter.
// Empty shells awaiting cleanup and full rooms are both hidden.
func (s *RoomStore) Joinable() []RoomSummary {
	out := make([]RoomSummary, 0, len(s.rooms))
	for code, rs := range s.rooms {
		live := 0
		for _, m := range rs.members {
			if m.conn != nil {
				live++
			}
		}
		if live == 0 || live >= s.max {
			continue
		}
		out = append(out, RoomSummary{
			Code:            code,
			Name:            rs.meta.Name,
			HasPassword:     rs.meta.HasPassword(),
			Participants:    live,
			MaxParticipants: s.max,
			CreatedAt:       rs.meta.CreatedAt.UnixMilli(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// DeleteRoom drops the room and every index pointing into it, returning the
// ids of the participants that were still registered.
func (s *RoomStore) DeleteRoom(code domain.RoomCode) []domain.ParticipantID {
	rs, ok := s.rooms[code]
	if !ok {
		return nil
	}
	ids := make([]domain.ParticipantID, 0, len(rs.members))
	for id, m := range rs.members {
		if m.conn != nil {
			delete(s.byConn, m.conn)
		}
		delete(s.byParticipant, id)
		delete(s.disconnected, id)
		ids = append(ids, id)
	}
	delete(s.rooms, code)
	log.Info().Str("module", "core.store").Str("room", string(code)).Msg("room deleted")
	return ids
}

// ExpiredBefore lists rooms created before cutoff, regardless of occupancy.
func (s *RoomStore) ExpiredBefore(cutoff time.Time) []domain.RoomCode {
	var out []domain.RoomCode
	for code, rs := range s.rooms {
		if rs.meta.CreatedAt.Before(cutoff) {
			out = append(out, code)
		}
	}
	return out
}
