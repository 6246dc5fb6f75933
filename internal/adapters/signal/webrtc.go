package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okomel/huddle/internal/domain"
)

// Negotiation payloads decode into pion types purely for shape validation
// at the boundary; the relay forwards them verbatim and never reads into
// them.

func (ctl *Controller) handleOffer(c *WsConn, data []byte) {
	var p struct {
		Type     string                    `json:"type"`
		TargetID string                    `json:"targetId"`
		Offer    webrtc.SessionDescription `json:"offer"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetID == "" {
		log.Error().Str("module", "signal").Msg("bad webrtc_offer payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Relay.Offer(c, domain.ParticipantID(p.TargetID), p.Offer)
}

func (ctl *Controller) handleAnswer(c *WsConn, data []byte) {
	var p struct {
		Type     string                    `json:"type"`
		TargetID string                    `json:"targetId"`
		Answer   webrtc.SessionDescription `json:"answer"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetID == "" {
		log.Error().Str("module", "signal").Msg("bad webrtc_answer payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Relay.Answer(c, domain.ParticipantID(p.TargetID), p.Answer)
}

func (ctl *Controller) handleCandidate(c *WsConn, data []byte) {
	var p struct {
		Type      string                  `json:"type"`
		TargetID  string                  `json:"targetId"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetID == "" {
		log.Error().Str("module", "signal").Msg("bad webrtc_ice_candidate payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Relay.Candidate(c, domain.ParticipantID(p.TargetID), p.Candidate)
}

func (ctl *Controller) handleMediaState(c *WsConn, data []byte) {
	var p struct {
		Type  string `json:"type"`
		Audio bool   `json:"audio"`
		Video bool   `json:"video"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad media_state payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Relay.MediaState(c, p.Audio, p.Video)
}
