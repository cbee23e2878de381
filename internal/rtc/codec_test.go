package rtc

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestDecodeDescription(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    webrtc.SDPType
		wantErr bool
	}{
		{name: "offer", raw: `{"type":"offer","sdp":"v=0"}`, want: webrtc.SDPTypeOffer},
		{name: "answer", raw: `{"type":"answer","sdp":"v=0"}`, want: webrtc.SDPTypeAnswer},
		{name: "rollback rejected", raw: `{"type":"rollback","sdp":""}`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
		{name: "garbage", raw: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := DecodeDescription(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", desc)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if desc.Type != tt.want || desc.SDP != "v=0" {
				t.Fatalf("got %+v", desc)
			}
		})
	}
}

func TestEncodeDescriptionIsBrowserShaped(t *testing.T) {
	raw, err := EncodeDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != `{"type":"answer","sdp":"v=0\r\n"}` {
		t.Fatalf("unexpected json %s", raw)
	}
}

func TestCandidateKeepsOptionalFields(t *testing.T) {
	raw := json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}`)

	init, err := DecodeCandidate(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if init.SDPMid == nil || *init.SDPMid != "0" {
		t.Fatalf("sdpMid lost: %+v", init)
	}
	if init.SDPMLineIndex == nil || *init.SDPMLineIndex != 0 {
		t.Fatalf("sdpMLineIndex lost: %+v", init)
	}
	if init.UsernameFragment != nil {
		t.Fatalf("usernameFragment should stay nil")
	}

	if _, err := DecodeCandidate(nil); err == nil {
		t.Fatal("expected error for missing candidate")
	}
}
