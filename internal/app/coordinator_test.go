package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okomel/huddle/internal/core"
	"github.com/okomel/huddle/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(fr, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) byType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, e := range f.events(t) {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeConn) last(t *testing.T, typ string) map[string]any {
	t.Helper()
	matches := f.byType(t, typ)
	require.NotEmpty(t, matches, "no %q event; got %v", typ, f.events(t))
	return matches[len(matches)-1]
}

type scheduledTask struct {
	delay time.Duration
	fn    func()
}

type harness struct {
	c         *Coordinator
	clock     time.Time
	scheduled []scheduledTask
}

func newHarness(maxParticipants int, window time.Duration) *harness {
	store := core.NewRoomStore(maxParticipants, core.NewCodeGenerator(6))
	h := &harness{clock: time.Unix(1700000000, 0)}
	c := NewCoordinator(store, NewPasswordHasher(), NewMessageLimiter(100, time.Minute), window)
	c.now = func() time.Time { return h.clock }
	c.schedule = func(d time.Duration, fn func()) {
		h.scheduled = append(h.scheduled, scheduledTask{delay: d, fn: fn})
	}
	h.c = c
	return h
}

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) fireScheduled() {
	tasks := h.scheduled
	h.scheduled = nil
	for _, task := range tasks {
		task.fn()
	}
}

func (h *harness) create(t *testing.T, name, roomName, password string) (domain.RoomCode, domain.ParticipantID, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	h.c.CreateRoom(conn, name, roomName, password)
	ev := conn.last(t, "room_created")
	return domain.RoomCode(ev["roomCode"].(string)), domain.ParticipantID(ev["participantId"].(string)), conn
}

func (h *harness) join(t *testing.T, code domain.RoomCode, name, password string) (domain.ParticipantID, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	h.c.Join(conn, code, name, password)
	ev := conn.last(t, "joined")
	return domain.ParticipantID(ev["participantId"].(string)), conn
}

func TestCreateRoomNoPassword(t *testing.T) {
	h := newHarness(10, 2*time.Minute)

	code, id, conn := h.create(t, "alice", "", "")
	assert.Len(t, string(code), 6)
	assert.NotEmpty(t, id)
	assert.Equal(t, true, conn.last(t, "room_created")["isHost"])

	// the creator is connected, so the room is public
	list := h.c.JoinableSnapshot()
	require.Len(t, list, 1)
	assert.Equal(t, code, list[0].Code)
	assert.False(t, list[0].HasPassword)
}

func TestJoinIgnoresPasswordOnOpenRoom(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, _ := h.create(t, "alice", "", "")

	// a password supplied against a passwordless room is ignored
	_, conn := h.join(t, code, "bob", "whatever")
	ev := conn.last(t, "joined")
	assert.Equal(t, false, ev["isHost"])
	assert.Len(t, ev["participants"].([]any), 2)
}

func TestJoinPasswordFlow(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, _ := h.create(t, "alice", "", "p1")

	noPass := &fakeConn{}
	h.c.Join(noPass, code, "bob", "")
	ev := noPass.last(t, "join_error")
	assert.Equal(t, domain.ErrPasswordRequired.Error(), ev["message"])
	assert.Equal(t, true, ev["requiresPassword"])

	wrong := &fakeConn{}
	h.c.Join(wrong, code, "bob", "nope")
	ev = wrong.last(t, "join_error")
	assert.Equal(t, domain.ErrInvalidPassword.Error(), ev["message"])
	assert.Nil(t, ev["requiresPassword"])

	_, okConn := h.join(t, code, "bob", "p1")
	views := okConn.last(t, "joined")["participants"].([]any)
	assert.Len(t, views, 2)
}

func TestCreateRoomWhileBoundRejected(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, _ := h.create(t, "alice", "", "")
	_, bobConn := h.join(t, code, "bob", "")

	h.c.CreateRoom(bobConn, "bob", "second", "")

	assert.Equal(t, domain.ErrAlreadyInRoom.Error(), bobConn.last(t, "error")["message"])
	assert.Empty(t, bobConn.byType(t, "room_created"))

	// bob's original membership is intact, nothing leaked
	list := h.c.JoinableSnapshot()
	require.Len(t, list, 1)
	assert.Equal(t, code, list[0].Code)
	assert.Equal(t, 2, list[0].Participants)
}

func TestJoinWhileBoundRejected(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	codeA, _, _ := h.create(t, "alice", "", "")
	_, bobConn := h.join(t, codeA, "bob", "")
	codeB, _, _ := h.create(t, "carol", "", "")

	h.c.Join(bobConn, codeB, "bob", "")

	assert.Equal(t, domain.ErrAlreadyInRoom.Error(), bobConn.last(t, "join_error")["message"])

	list := h.c.JoinableSnapshot()
	require.Len(t, list, 2)
	for _, r := range list {
		switch r.Code {
		case codeA:
			assert.Equal(t, 2, r.Participants)
		case codeB:
			assert.Equal(t, 1, r.Participants)
		}
	}

	// the socket still answers for its original identity
	h.c.Chat(bobConn, "still here")
	assert.Equal(t, "still here", bobConn.last(t, "chat_message")["text"])
}

func TestReconnectWhileBoundRejected(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, _ := h.create(t, "alice", "", "")
	bobID, bobConn := h.join(t, code, "bob", "")
	_, carolConn := h.join(t, code, "carol", "")

	h.c.Disconnect(bobConn)
	h.c.Reconnect(carolConn, code, bobID)

	assert.Equal(t, domain.ErrAlreadyInRoom.Error(), carolConn.last(t, "reconnect_error")["message"])
	assert.Empty(t, carolConn.byType(t, "reconnected"))
}

func TestJoinRoomNotFound(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	conn := &fakeConn{}
	h.c.Join(conn, "NOSUCH", "bob", "")
	assert.Equal(t, domain.ErrRoomNotFound.Error(), conn.last(t, "join_error")["message"])
}

func TestJoinRechecksPasswordAtCommit(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, _ := h.create(t, "alice", "", "p1")

	// while the verify is in flight the code comes to name a room with a
	// different password, as after delete-and-reuse
	h.c.verify = func(password, hash string) bool {
		room, ok := h.c.store.Room(code)
		require.True(t, ok)
		room.PasswordHash = "$2a$10$different"
		return h.c.hasher.Verify(password, hash)
	}

	conn := &fakeConn{}
	h.c.Join(conn, code, "bob", "p1")
	assert.Equal(t, domain.ErrInvalidPassword.Error(), conn.last(t, "join_error")["message"])
	assert.Empty(t, conn.byType(t, "joined"))

	list := h.c.JoinableSnapshot()
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Participants)
}

func TestJoinCommitAcceptsRoomTurnedOpen(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, _ := h.create(t, "alice", "", "p1")

	// the replacement room has no password at all; nothing left to verify
	h.c.verify = func(password, hash string) bool {
		room, ok := h.c.store.Room(code)
		require.True(t, ok)
		room.PasswordHash = ""
		return h.c.hasher.Verify(password, hash)
	}

	_, conn := h.join(t, code, "bob", "p1")
	assert.Len(t, conn.last(t, "joined")["participants"].([]any), 2)
}

func TestJoinCapacityEdge(t *testing.T) {
	h := newHarness(3, 2*time.Minute)
	code, _, _ := h.create(t, "host", "", "")
	h.join(t, code, "second", "")
	h.join(t, code, "third", "")

	full := &fakeConn{}
	h.c.Join(full, code, "fourth", "")
	assert.Equal(t, domain.ErrRoomFull.Error(), full.last(t, "join_error")["message"])
}

func TestJoinNotifiesPeers(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, hostConn := h.create(t, "alice", "", "")

	bobID, _ := h.join(t, code, "bob", "")

	ev := hostConn.last(t, "participant_joined")
	assert.Equal(t, string(bobID), ev["id"])
	assert.Equal(t, "bob", ev["name"])
	assert.Len(t, ev["participants"].([]any), 2)
}

func TestHostLeaveReassignsHost(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, hostConn := h.create(t, "alice", "", "")
	bobID, bobConn := h.join(t, code, "bob", "")
	h.join(t, code, "carol", "")

	h.c.Leave(hostConn)

	ev := bobConn.last(t, "participant_left")
	assert.Equal(t, string(bobID), ev["newHostId"], "host moves to the oldest remaining participant")

	// the room is still public with two live members
	list := h.c.JoinableSnapshot()
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Participants)
}

func TestLastLeaveDeletesRoom(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, conn := h.create(t, "alice", "", "")

	h.c.Leave(conn)

	assert.Empty(t, h.c.JoinableSnapshot())
	// the code is free again: joining it reports not-found
	probe := &fakeConn{}
	h.c.Join(probe, code, "bob", "")
	assert.Equal(t, domain.ErrRoomNotFound.Error(), probe.last(t, "join_error")["message"])
}

func TestLastLiveLeaveSchedulesCleanup(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, aliceConn := h.create(t, "alice", "", "")
	_, bobConn := h.join(t, code, "bob", "")

	// bob drops; his cleanup fires while alice is still live and no-ops
	h.c.Disconnect(bobConn)
	h.advance(3 * time.Minute)
	h.fireScheduled()
	require.True(t, h.c.JoinableSnapshot()[0].Code == code)

	// alice leaves; only bob's foreclosed slot remains, so a fresh
	// cleanup must be armed
	h.c.Leave(aliceConn)
	require.Len(t, h.scheduled, 1)
	assert.Equal(t, 2*time.Minute+cleanupGrace, h.scheduled[0].delay)

	h.advance(3 * time.Minute)
	h.fireScheduled()

	probe := &fakeConn{}
	h.c.Join(probe, code, "dave", "")
	assert.Equal(t, domain.ErrRoomNotFound.Error(), probe.last(t, "join_error")["message"])
}

func TestLeaveWithLivePeersSchedulesNothing(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, aliceConn := h.create(t, "alice", "", "")
	h.join(t, code, "bob", "")

	h.c.Leave(aliceConn)

	assert.Empty(t, h.scheduled)
	require.Len(t, h.c.JoinableSnapshot(), 1)
	assert.Equal(t, 1, h.c.JoinableSnapshot()[0].Participants)
}

func TestReconnectWithinWindow(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, hostConn := h.create(t, "alice", "", "")
	bobID, bobConn := h.join(t, code, "bob", "")
	h.c.Chat(bobConn, "before the drop")

	h.c.Disconnect(bobConn)
	ev := hostConn.last(t, "participant_disconnected")
	assert.Equal(t, string(bobID), ev["id"])

	h.advance(time.Minute)
	fresh := &fakeConn{}
	h.c.Reconnect(fresh, code, bobID)

	rec := fresh.last(t, "reconnected")
	assert.Equal(t, string(bobID), rec["participantId"], "identity survives the drop")
	assert.Equal(t, false, rec["isHost"])
	chat := rec["chat"].([]any)
	require.Len(t, chat, 1)
	assert.Equal(t, "before the drop", chat[0].(map[string]any)["text"])

	assert.Equal(t, string(bobID), hostConn.last(t, "participant_reconnected")["id"])
}

func TestReconnectAfterWindowFails(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, _ := h.create(t, "alice", "", "")
	bobID, bobConn := h.join(t, code, "bob", "")

	h.c.Disconnect(bobConn)
	h.advance(3 * time.Minute)

	fresh := &fakeConn{}
	h.c.Reconnect(fresh, code, bobID)
	assert.Equal(t, domain.ErrReconnectExpired.Error(), fresh.last(t, "reconnect_error")["message"])
	assert.Empty(t, fresh.byType(t, "reconnected"))

	// the slot is still in the room, just not connected
	list := h.c.JoinableSnapshot()
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Participants)
}

func TestReconnectUnknownParticipant(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, _ := h.create(t, "alice", "", "")

	conn := &fakeConn{}
	h.c.Reconnect(conn, code, "ghost")
	assert.Equal(t, domain.ErrUnknownParticipant.Error(), conn.last(t, "reconnect_error")["message"])
}

func TestDisconnectCleanupDeletesDeadRoom(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	_, _, conn := h.create(t, "alice", "", "")

	h.c.Disconnect(conn)
	require.Len(t, h.scheduled, 1)
	assert.Equal(t, 2*time.Minute+cleanupGrace, h.scheduled[0].delay)

	h.advance(3 * time.Minute)
	h.fireScheduled()

	assert.Empty(t, h.c.JoinableSnapshot())
}

func TestDisconnectCleanupSparesReconnected(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, id, conn := h.create(t, "alice", "", "")

	h.c.Disconnect(conn)
	h.advance(time.Minute)
	fresh := &fakeConn{}
	h.c.Reconnect(fresh, code, id)
	fresh.last(t, "reconnected")

	h.fireScheduled()

	// the cleanup re-check found the room occupied and left it alone
	require.Len(t, h.c.JoinableSnapshot(), 1)
}

func TestChatBroadcastsToFullRoom(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, hostConn := h.create(t, "alice", "", "")
	bobID, bobConn := h.join(t, code, "bob", "")

	h.c.Chat(bobConn, "hello")

	for _, conn := range []*fakeConn{hostConn, bobConn} {
		ev := conn.last(t, "chat_message")
		assert.Equal(t, string(bobID), ev["authorId"])
		assert.Equal(t, "bob", ev["authorName"])
		assert.Equal(t, "hello", ev["text"])
	}
}

func TestChatFromOutsideAnyRoom(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	conn := &fakeConn{}
	h.c.Chat(conn, "hello?")
	assert.Equal(t, domain.ErrUnknownParticipant.Error(), conn.last(t, "error")["message"])
}

func TestChatRateLimited(t *testing.T) {
	store := core.NewRoomStore(10, core.NewCodeGenerator(6))
	c := NewCoordinator(store, NewPasswordHasher(), NewMessageLimiter(2, time.Minute), 2*time.Minute)
	conn := &fakeConn{}
	c.CreateRoom(conn, "alice", "", "")

	c.Chat(conn, "one")
	c.Chat(conn, "two")
	c.Chat(conn, "three")

	assert.Len(t, conn.byType(t, "chat_message"), 2)
	assert.Equal(t, "too many messages", conn.last(t, "error")["message"])
}

func TestExpireRoomsSweepsOldOnes(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	h.create(t, "alice", "", "")
	h.advance(25 * time.Hour)
	h.create(t, "bob", "", "")

	n := h.c.ExpireRooms(24 * time.Hour)
	assert.Equal(t, 1, n)

	list := h.c.JoinableSnapshot()
	require.Len(t, list, 1)
	assert.Equal(t, "bob's Room", list[0].Name)
}

func TestRoomsListEvent(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	h.create(t, "alice", "movie night", "")

	conn := &fakeConn{}
	h.c.Rooms(conn)
	rooms := conn.last(t, "rooms_list")["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, "movie night", rooms[0].(map[string]any)["name"])
}

func TestBroadcastOrderMatchesCommitOrder(t *testing.T) {
	h := newHarness(10, 2*time.Minute)
	code, _, hostConn := h.create(t, "alice", "", "")
	_, bobConn := h.join(t, code, "bob", "")

	h.c.Chat(bobConn, "first")
	h.c.Chat(hostConn, "second")
	h.c.Chat(bobConn, "third")

	var got []string
	for _, ev := range hostConn.byType(t, "chat_message") {
		got = append(got, ev["text"].(string))
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)
}
