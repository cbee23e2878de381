package signalling

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/mossy-p/peer-signaling/internal/models"
	"github.com/mossy-p/peer-signaling/internal/rtc"
	"github.com/mossy-p/peer-signaling/internal/rtc/rtctest"
	"github.com/mossy-p/peer-signaling/internal/state"
)

type recorder struct {
	events []state.Event
	frames []models.SignalMessage
}

func (r *recorder) Dispatch(ev state.Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) send(msg models.SignalMessage) error {
	r.frames = append(r.frames, msg)
	return nil
}

func (r *recorder) count(match func(state.Event) bool) int {
	n := 0
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func isIceConnected(ev state.Event) bool {
	_, ok := ev.(state.IceConnected)
	return ok
}

func isChannelReady(ev state.Event) bool {
	c, ok := ev.(state.DataChannelStatusChange)
	return ok && c.Status == state.DataChannelReady
}

func newTestProxy(t *testing.T, offerer bool) (*PeerProxy, *rtctest.PeerConnection, *recorder) {
	t.Helper()

	factory := &rtctest.Factory{}
	rec := &recorder{}
	p, err := newPeerProxy(proxyConfig{
		OwnID:    "x",
		RemoteID: "y",
		Offerer:  offerer,
		Factory:  factory,
		Send:     rec.send,
		Dispatch: rec,
		Post:     func(fn func()) { fn() },
	})
	if err != nil {
		t.Fatalf("newPeerProxy: %v", err)
	}
	return p, factory.Last(), rec
}

func offer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

func answer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestOffererPath(t *testing.T) {
	p, pc, rec := newTestProxy(t, true)

	if err := p.Offer(); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if len(rec.frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(rec.frames))
	}
	frame := rec.frames[0]
	if frame.Event != models.EventRTCOffer || frame.FromPeerUUID != "x" || frame.ToPeerUUID != "y" {
		t.Fatalf("unexpected offer frame %+v", frame)
	}
	desc, err := rtc.DecodeDescription(frame.Description)
	if err != nil || desc.Type != webrtc.SDPTypeOffer || desc.SDP != "offer-0" {
		t.Fatalf("unexpected description %+v (%v)", desc, err)
	}
	if p.State() != StateOfferSent {
		t.Fatalf("state = %s, want OFFER_SENT", p.State())
	}
	if got := len(pc.Channels()); got != 1 || pc.Channels()[0].Label() != rtc.DataChannelLabel {
		t.Fatalf("offerer should open %q, channels=%d", rtc.DataChannelLabel, got)
	}

	p.HandleAnswer(answer("answer-y"))
	if p.State() != StateAnswerReceived {
		t.Fatalf("state = %s, want ANSWER_RECEIVED", p.State())
	}
	if pc.RemoteDescription() == nil || pc.RemoteDescription().SDP != "answer-y" {
		t.Fatalf("remote description not applied: %+v", pc.RemoteDescription())
	}
}

func TestDescriptionsAreSetAtMostOnce(t *testing.T) {
	p, pc, rec := newTestProxy(t, true)

	if err := p.Offer(); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if err := p.Offer(); err != nil {
		t.Fatalf("second Offer: %v", err)
	}
	p.HandleAnswer(answer("first"))
	p.HandleAnswer(answer("second"))

	if pc.SetLocalCalls() != 1 {
		t.Fatalf("set local called %d times", pc.SetLocalCalls())
	}
	if pc.SetRemoteCalls() != 1 {
		t.Fatalf("set remote called %d times", pc.SetRemoteCalls())
	}
	if pc.RemoteDescription().SDP != "first" {
		t.Fatalf("later answer replaced the first: %q", pc.RemoteDescription().SDP)
	}
	if len(rec.frames) != 1 {
		t.Fatalf("expected a single offer frame, got %d", len(rec.frames))
	}
}

func TestAnswererPath(t *testing.T) {
	p, pc, rec := newTestProxy(t, false)

	p.HandleOffer(offer("offer-y"))
	p.HandleOffer(offer("offer-y"))

	if pc.SetRemoteCalls() != 1 || pc.SetLocalCalls() != 1 {
		t.Fatalf("remote=%d local=%d, want 1/1", pc.SetRemoteCalls(), pc.SetLocalCalls())
	}
	if len(rec.frames) != 1 || rec.frames[0].Event != models.EventRTCAnswer {
		t.Fatalf("expected exactly one answer, got %+v", rec.frames)
	}
	desc, err := rtc.DecodeDescription(rec.frames[0].Description)
	if err != nil || desc.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("bad answer payload %+v (%v)", desc, err)
	}
	if p.State() != StateAnswerSent {
		t.Fatalf("state = %s, want ANSWER_SENT", p.State())
	}
	if len(pc.Channels()) != 0 {
		t.Fatal("answerer must not open its own data channel")
	}
}

func TestAnswerWithoutOfferIsIgnored(t *testing.T) {
	p, pc, _ := newTestProxy(t, true)

	p.HandleAnswer(answer("stray"))
	if pc.SetRemoteCalls() != 0 || p.State() != StateNew {
		t.Fatalf("stray answer applied: calls=%d state=%s", pc.SetRemoteCalls(), p.State())
	}
}

func TestEarlyCandidatesAreQueued(t *testing.T) {
	p, pc, _ := newTestProxy(t, false)

	p.HandleRemoteCandidate(candidate("c1"))
	p.HandleRemoteCandidate(candidate("c2"))
	if len(pc.Candidates()) != 0 {
		t.Fatal("candidates added before remote description")
	}

	p.HandleOffer(offer("offer-y"))

	got := pc.Candidates()
	if len(got) != 2 || got[0].Candidate != "c1" || got[1].Candidate != "c2" {
		t.Fatalf("queued candidates not flushed in order: %+v", got)
	}
	if p.State() != StateICEExchanging {
		t.Fatalf("state = %s, want ICE_EXCHANGING", p.State())
	}
}

func TestCandidateAfterEstablishmentOnlyConfirms(t *testing.T) {
	p, pc, rec := newTestProxy(t, false)
	p.HandleOffer(offer("offer-y"))

	pc.SetICEState(webrtc.ICEConnectionStateConnected)
	if p.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED", p.State())
	}
	before := rec.count(isIceConnected)

	p.HandleRemoteCandidate(candidate("late"))
	p.HandleRemoteCandidate(candidate("late"))

	if n := len(pc.Candidates()); n != 0 {
		t.Fatalf("candidate added after establishment (%d)", n)
	}
	if got := rec.count(isIceConnected) - before; got != 2 {
		t.Fatalf("expected 2 ICE connected confirmations, got %d", got)
	}
}

func TestUnansweredOfferStaysOfferSent(t *testing.T) {
	p, pc, _ := newTestProxy(t, true)
	if err := p.Offer(); err != nil {
		t.Fatalf("Offer: %v", err)
	}

	p.HandleRemoteCandidate(candidate("c1"))
	pc.EmitCandidate("local-1")

	if p.State() != StateOfferSent {
		t.Fatalf("state = %s, want OFFER_SENT", p.State())
	}
	if len(pc.Candidates()) != 0 {
		t.Fatal("candidate applied without remote description")
	}
}

func TestCapabilityFailuresLeaveStateUnchanged(t *testing.T) {
	t.Run("create offer", func(t *testing.T) {
		p, pc, rec := newTestProxy(t, true)
		pc.CreateOfferErr = errors.New("boom")

		if err := p.Offer(); err == nil {
			t.Fatal("expected error")
		}
		if p.State() != StateNew || len(rec.frames) != 0 {
			t.Fatalf("state=%s frames=%d", p.State(), len(rec.frames))
		}
	})

	t.Run("set remote", func(t *testing.T) {
		p, pc, rec := newTestProxy(t, false)
		pc.SetRemoteErr = errors.New("bad sdp")

		p.HandleOffer(offer("offer-y"))
		if p.State() != StateNew || len(rec.frames) != 0 || p.RemoteDescription() != nil {
			t.Fatalf("state=%s frames=%d", p.State(), len(rec.frames))
		}

		pc.SetRemoteErr = nil
		p.HandleOffer(offer("offer-y"))
		if p.State() != StateAnswerSent {
			t.Fatalf("retry after failure: state = %s", p.State())
		}
	})

	t.Run("add candidate", func(t *testing.T) {
		p, pc, _ := newTestProxy(t, true)
		if err := p.Offer(); err != nil {
			t.Fatalf("Offer: %v", err)
		}
		p.HandleAnswer(answer("answer-y"))
		pc.AddCandidateErr = errors.New("rejected")

		p.HandleRemoteCandidate(candidate("c1"))
		if p.State() != StateAnswerReceived {
			t.Fatalf("state = %s, want ANSWER_RECEIVED", p.State())
		}
	})
}

func TestDataChannelReadyComesFromOpen(t *testing.T) {
	p, pc, rec := newTestProxy(t, true)
	if err := p.Offer(); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	p.HandleAnswer(answer("answer-y"))
	p.HandleRemoteCandidate(candidate("c1"))

	if p.State() != StateICEExchanging {
		t.Fatalf("state = %s, want ICE_EXCHANGING", p.State())
	}
	if rec.count(isChannelReady) != 0 || p.DataChannelReady() {
		t.Fatal("candidate success must not mark the channel ready")
	}
	if err := p.SendText("early"); !errors.Is(err, ErrDataChannelNotReady) {
		t.Fatalf("SendText before open: %v", err)
	}

	ch := pc.Channels()[0]
	ch.Open()

	if rec.count(isChannelReady) != 1 || !p.DataChannelReady() {
		t.Fatal("open did not mark the channel ready")
	}
	if err := p.SendText("hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if sent := ch.Sent(); len(sent) != 1 || sent[0] != "hello" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestICEConnectedReportsOpenChannel(t *testing.T) {
	p, pc, rec := newTestProxy(t, true)
	if err := p.Offer(); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	p.HandleAnswer(answer("answer-y"))
	pc.Channels()[0].Open()

	pc.SetICEState(webrtc.ICEConnectionStateChecking)
	if p.State() != StateAnswerReceived {
		t.Fatalf("checking moved state to %s", p.State())
	}

	pc.SetICEState(webrtc.ICEConnectionStateCompleted)
	if p.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED", p.State())
	}
	if rec.count(isIceConnected) != 1 {
		t.Fatalf("ICE connected emitted %d times", rec.count(isIceConnected))
	}
	if rec.count(isChannelReady) != 2 {
		t.Fatalf("channel ready emitted %d times, want open + connected", rec.count(isChannelReady))
	}
}

func TestAnswererAdoptsInboundChannel(t *testing.T) {
	p, pc, rec := newTestProxy(t, false)
	p.HandleOffer(offer("offer-y"))

	dc := pc.AcceptChannel(rtc.DataChannelLabel)
	dc.Deliver("hi")
	dc.Open()

	var received []string
	for _, ev := range rec.events {
		if m, ok := ev.(state.ReceivedMessage); ok {
			if m.UUID != "y" {
				t.Fatalf("message tagged with %q", m.UUID)
			}
			received = append(received, m.Text)
		}
	}
	if len(received) != 1 || received[0] != "hi" {
		t.Fatalf("received = %v", received)
	}
	if !p.DataChannelReady() {
		t.Fatal("inbound channel not ready after open")
	}
}

func TestLocalCandidatesAreSentImmediately(t *testing.T) {
	_, pc, rec := newTestProxy(t, false)

	pc.EmitCandidate("candidate:1 1 udp 1 10.0.0.1 5000 typ host")
	pc.EmitCandidate("candidate:2 1 udp 1 10.0.0.2 5000 typ host")

	if len(rec.frames) != 2 {
		t.Fatalf("expected 2 candidate frames, got %d", len(rec.frames))
	}
	for _, f := range rec.frames {
		if f.Event != models.EventNewICECandidate || f.ToPeerUUID != "y" || f.FromPeerUUID != "x" {
			t.Fatalf("unexpected frame %+v", f)
		}
	}
	c, err := rtc.DecodeCandidate(rec.frames[1].Candidate)
	if err != nil || c.Candidate != "candidate:2 1 udp 1 10.0.0.2 5000 typ host" {
		t.Fatalf("candidate payload %+v (%v)", c, err)
	}
}

func TestClosedProxyIgnoresCallbacks(t *testing.T) {
	p, pc, rec := newTestProxy(t, false)
	p.Close()
	p.Close()

	if !pc.Closed() {
		t.Fatal("capability not closed")
	}
	pc.EmitCandidate("c1")
	pc.SetICEState(webrtc.ICEConnectionStateConnected)
	p.HandleOffer(offer("offer-y"))

	if len(rec.frames) != 0 || len(rec.events) != 0 {
		t.Fatalf("closed proxy produced frames=%d events=%d", len(rec.frames), len(rec.events))
	}
}

func TestFactoryFailure(t *testing.T) {
	_, err := newPeerProxy(proxyConfig{
		RemoteID: "y",
		Factory:  &rtctest.Factory{Err: errors.New("no ice")},
		Post:     func(fn func()) { fn() },
	})
	if err == nil {
		t.Fatal("expected factory error")
	}
}
