package app

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okomel/huddle/internal/core"
	"github.com/okomel/huddle/internal/domain"
)

// Outbound events. Every frame carries a "type" discriminator; the rest of
// the shape is fixed per type. Encoding happens under the coordinator lock
// so room broadcasts leave in commit order; the actual socket write is the
// adapter's write pump draining a per-connection FIFO.

type roomsListEvent struct {
	Type  string             `json:"type"`
	Rooms []core.RoomSummary `json:"rooms"`
}

type roomCreatedEvent struct {
	Type          string               `json:"type"`
	RoomCode      domain.RoomCode      `json:"roomCode"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	IsHost        bool                 `json:"isHost"`
}

// joinedEvent doubles as "joined" and "reconnected".
type joinedEvent struct {
	Type          string                 `json:"type"`
	RoomCode      domain.RoomCode        `json:"roomCode"`
	ParticipantID domain.ParticipantID   `json:"participantId"`
	IsHost        bool                   `json:"isHost"`
	Participants  []core.ParticipantView `json:"participants"`
	Chat          []domain.ChatMessage   `json:"chat"`
}

type joinErrorEvent struct {
	Type             string `json:"type"`
	Message          string `json:"message"`
	RequiresPassword bool   `json:"requiresPassword,omitempty"`
}

type reconnectErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// participantEvent covers participant_joined / _left / _disconnected /
// _reconnected room broadcasts.
type participantEvent struct {
	Type         string                 `json:"type"`
	ID           domain.ParticipantID   `json:"id"`
	Name         string                 `json:"name"`
	Participants []core.ParticipantView `json:"participants,omitempty"`
	NewHostID    domain.ParticipantID   `json:"newHostId,omitempty"`
}

type chatEvent struct {
	Type string `json:"type"`
	domain.ChatMessage
}

type peerInfo struct {
	ID   domain.ParticipantID `json:"id"`
	Name string               `json:"name"`
}

type peersEvent struct {
	Type  string     `json:"type"`
	Peers []peerInfo `json:"peers"`
}

type newPeerEvent struct {
	Type string               `json:"type"`
	ID   domain.ParticipantID `json:"id"`
	Name string               `json:"name"`
}

// signalEvent relays one negotiation payload. Exactly one of Offer, Answer
// or Candidate is set; contents pass through undecoded beyond their shape.
type signalEvent struct {
	Type      string                     `json:"type"`
	FromID    domain.ParticipantID       `json:"fromId"`
	FromName  string                     `json:"fromName,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type mediaStateEvent struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Audio         bool                 `json:"audio"`
	Video         bool                 `json:"video"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// send encodes and enqueues best-effort: a full send buffer or closed
// connection drops the frame, which is the accepted policy for signaling.
func send(conn core.Conn, v any) {
	if conn == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("event marshal")
		return
	}
	_ = conn.TrySend(core.Frame(b))
}
