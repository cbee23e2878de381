package rtc

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/mossy-p/peer-signaling/internal/models"
)

// EncodeDescription renders a pion description as the browser {type, sdp} JSON.
func EncodeDescription(desc webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(models.SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	})
}

// DecodeDescription parses a browser {type, sdp} payload. Only offers and
// answers are accepted.
func DecodeDescription(raw json.RawMessage) (webrtc.SessionDescription, error) {
	if len(raw) == 0 {
		return webrtc.SessionDescription{}, errors.New("missing description")
	}

	var d models.SessionDescription
	if err := json.Unmarshal(raw, &d); err != nil {
		return webrtc.SessionDescription{}, errors.Wrap(err, "decode description")
	}

	var t webrtc.SDPType
	switch d.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, errors.Errorf("unsupported sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

// EncodeCandidate renders a candidate in the browser RTCIceCandidate shape.
func EncodeCandidate(init webrtc.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(models.ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})
}

// DecodeCandidate parses a browser RTCIceCandidate payload.
func DecodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	if len(raw) == 0 {
		return webrtc.ICECandidateInit{}, errors.New("missing candidate")
	}

	var c models.ICECandidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return webrtc.ICECandidateInit{}, errors.Wrap(err, "decode candidate")
	}
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}, nil
}
