package signal

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/okomel/huddle/internal/domain"
)

func (ctl *Controller) handleCreateRoom(c *WsConn, data []byte) {
	var p struct {
		Type     string `json:"type"`
		Name     string `json:"name"`
		Password string `json:"password"`
		RoomName string `json:"roomName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create_room payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Coord.CreateRoom(c, p.Name, p.RoomName, p.Password)
}

func (ctl *Controller) handleJoinRoom(c *WsConn, data []byte) {
	var p struct {
		Type     string `json:"type"`
		RoomCode string `json:"roomCode"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomCode == "" {
		log.Error().Str("module", "signal").Msg("bad join_room payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Coord.Join(c, domain.RoomCode(p.RoomCode), p.Name, p.Password)
}

func (ctl *Controller) handleReconnect(c *WsConn, data []byte) {
	var p struct {
		Type          string `json:"type"`
		RoomCode      string `json:"roomCode"`
		ParticipantID string `json:"participantId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomCode == "" || p.ParticipantID == "" {
		log.Error().Str("module", "signal").Msg("bad reconnect_room payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Coord.Reconnect(c, domain.RoomCode(p.RoomCode), domain.ParticipantID(p.ParticipantID))
}

func (ctl *Controller) handleChat(c *WsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		ctl.sendError(c, "empty message")
		return
	}
	ctl.Coord.Chat(c, text)
}
