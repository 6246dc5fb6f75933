package app

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okomel/huddle/internal/core"
	"github.com/okomel/huddle/internal/domain"
)

// Relay routes negotiation payloads between participants of one room. It is
// a pure router keyed by participant id: the target's connection is resolved
// at forward time, so a mid-exchange reconnect transparently redirects
// later messages to the new socket. A target that is present but currently
// disconnected gets a silent drop; negotiation retries cover that.
type Relay struct {
	c *Coordinator
}

func NewRelay(c *Coordinator) *Relay {
	return &Relay{c: c}
}

// PeerJoin runs the full-mesh introduction for a freshly-signaled member:
// they receive the live peer list, each live peer learns about them.
func (r *Relay) PeerJoin(conn core.Conn) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	code, from, ok := r.c.store.ByConn(conn)
	if !ok {
		send(conn, errorEvent{Type: "error", Message: domain.ErrUnknownParticipant.Error()})
		return
	}
	peers := r.c.store.LivePeers(code, from.ID)

	infos := make([]peerInfo, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, peerInfo{ID: p.ID, Name: p.Name})
	}
	send(conn, peersEvent{Type: "webrtc_peers", Peers: infos})

	for _, p := range peers {
		send(p.Conn, newPeerEvent{Type: "webrtc_new_peer", ID: from.ID, Name: from.Name})
	}
}

func (r *Relay) Offer(conn core.Conn, target domain.ParticipantID, offer webrtc.SessionDescription) {
	r.forward(conn, target, func(from *domain.Participant) any {
		return signalEvent{Type: "webrtc_offer", FromID: from.ID, FromName: from.Name, Offer: &offer}
	})
}

func (r *Relay) Answer(conn core.Conn, target domain.ParticipantID, answer webrtc.SessionDescription) {
	r.forward(conn, target, func(from *domain.Participant) any {
		return signalEvent{Type: "webrtc_answer", FromID: from.ID, Answer: &answer}
	})
}

func (r *Relay) Candidate(conn core.Conn, target domain.ParticipantID, cand webrtc.ICECandidateInit) {
	r.forward(conn, target, func(from *domain.Participant) any {
		return signalEvent{Type: "webrtc_ice_candidate", FromID: from.ID, Candidate: &cand}
	})
}

// MediaState broadcasts a lightweight audio/video toggle to the rest of the
// room; it carries no media, only the flags.
func (r *Relay) MediaState(conn core.Conn, audio, video bool) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	code, from, ok := r.c.store.ByConn(conn)
	if !ok {
		send(conn, errorEvent{Type: "error", Message: domain.ErrUnknownParticipant.Error()})
		return
	}
	for _, peer := range r.c.store.LivePeers(code, from.ID) {
		send(peer.Conn, mediaStateEvent{Type: "participant_media_state", ParticipantID: from.ID, Audio: audio, Video: video})
	}
}

func (r *Relay) forward(conn core.Conn, target domain.ParticipantID, build func(from *domain.Participant) any) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	code, from, ok := r.c.store.ByConn(conn)
	if !ok {
		send(conn, errorEvent{Type: "error", Message: domain.ErrUnknownParticipant.Error()})
		return
	}
	peer, err := r.c.store.Resolve(code, target)
	if err != nil {
		send(conn, errorEvent{Type: "error", Message: err.Error()})
		return
	}
	if peer.Conn == nil {
		log.Debug().Str("module", "app.relay").Str("room", string(code)).Str("target", string(target)).Msg("target offline, dropped")
		return
	}
	send(peer.Conn, build(from))
}
