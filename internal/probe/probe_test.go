package probe

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeConn satisfies peerConnection without touching the network. When emit is
// set it delivers one candidate as soon as the local description lands.
type fakeConn struct {
	emit     bool
	offerErr error
	onCand   func(*webrtc.ICECandidate)
}

func (f *fakeConn) CreateDataChannel(string, *webrtc.DataChannelInit) (*webrtc.DataChannel, error) {
	return nil, nil
}

func (f *fakeConn) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{}, f.offerErr
}

func (f *fakeConn) SetLocalDescription(webrtc.SessionDescription) error {
	if f.emit && f.onCand != nil {
		f.onCand(&webrtc.ICECandidate{})
	}
	return nil
}

func (f *fakeConn) OnICECandidate(fn func(*webrtc.ICECandidate)) { f.onCand = fn }

func (f *fakeConn) Close() error { return nil }

func TestCheckSupported(t *testing.T) {
	p := New(Config{Logger: quietLogger()})
	p.newConn = func(webrtc.Configuration) (peerConnection, error) {
		return &fakeConn{emit: true}, nil
	}

	support := p.Check(context.Background())
	if !support.Supported {
		t.Errorf("supported = false, reason %q", support.Reason)
	}
	if support.Reason != "" {
		t.Errorf("reason = %q, want empty on success", support.Reason)
	}
}

func TestCheckConstructorFailure(t *testing.T) {
	p := New(Config{Logger: quietLogger()})
	p.newConn = func(webrtc.Configuration) (peerConnection, error) {
		return nil, errors.New("no UDP sockets")
	}

	support := p.Check(context.Background())
	if support.Supported {
		t.Fatal("supported = true despite constructor failure")
	}
	if !strings.Contains(support.Reason, "peer transport is not available") {
		t.Errorf("reason = %q", support.Reason)
	}
}

func TestCheckNoCandidatesTimesOut(t *testing.T) {
	p := New(Config{Timeout: 20 * time.Millisecond, Logger: quietLogger()})
	p.newConn = func(webrtc.Configuration) (peerConnection, error) {
		return &fakeConn{emit: false}, nil
	}

	support := p.Check(context.Background())
	if support.Supported {
		t.Fatal("supported = true with no candidates")
	}
	if !strings.Contains(support.Reason, "peer transport is blocked") {
		t.Errorf("reason = %q", support.Reason)
	}
}

func TestCheckRunsOnce(t *testing.T) {
	calls := 0
	p := New(Config{Logger: quietLogger()})
	p.newConn = func(webrtc.Configuration) (peerConnection, error) {
		calls++
		return &fakeConn{emit: true}, nil
	}

	first := p.Check(context.Background())
	second := p.Check(context.Background())

	if calls != 1 {
		t.Errorf("probe ran %d times, want 1", calls)
	}
	if first != second {
		t.Errorf("cached result differs: %+v vs %+v", first, second)
	}
}

func TestCheckConfiguresICEServers(t *testing.T) {
	var got webrtc.Configuration
	p := New(Config{
		STUNServers: []string{"stun:stun.example.org:3478"},
		TURNServer:  "turn:relay.example.org:443?transport=tcp",
		TURNUser:    "user",
		TURNSecret:  "secret",
		Logger:      quietLogger(),
	})
	p.newConn = func(c webrtc.Configuration) (peerConnection, error) {
		got = c
		return &fakeConn{emit: true}, nil
	}

	p.Check(context.Background())

	if len(got.ICEServers) != 2 {
		t.Fatalf("ICE servers = %d, want STUN + TURN", len(got.ICEServers))
	}
	if got.ICEServers[1].Username != "user" {
		t.Errorf("TURN username = %q", got.ICEServers[1].Username)
	}
	if got.ICECandidatePoolSize != 5 {
		t.Errorf("candidate pool size = %d, want 5", got.ICECandidatePoolSize)
	}
}
