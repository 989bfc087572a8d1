package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"streambridge/internal/domain"
)

// peerConnection is the slice of *webrtc.PeerConnection the probe needs.
type peerConnection interface {
	CreateDataChannel(label string, options *webrtc.DataChannelInit) (*webrtc.DataChannel, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	Close() error
}

type Config struct {
	Timeout     time.Duration
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNSecret  string
	Logger      *logrus.Logger
}

// Probe performs a one-shot check of whether peer-to-peer transport is usable.
// The first Check runs the probe; the result is cached for the process
// lifetime and never silently re-probed.
type Probe struct {
	cfg     Config
	newConn func(webrtc.Configuration) (peerConnection, error)

	once   sync.Once
	result domain.TransportSupport
}

func New(cfg Config) *Probe {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Probe{
		cfg: cfg,
		newConn: func(c webrtc.Configuration) (peerConnection, error) {
			return webrtc.NewPeerConnection(c)
		},
	}
}

// Check reports whether peer transport is usable. Safe to call from multiple
// goroutines; the underlying probe runs at most once.
func (p *Probe) Check(ctx context.Context) domain.TransportSupport {
	p.once.Do(func() {
		p.result = p.run(ctx)
		if p.result.Supported {
			p.cfg.Logger.Info("peer transport probe succeeded")
		} else {
			p.cfg.Logger.Warnf("peer transport probe failed: %s", p.result.Reason)
		}
	})
	return p.result
}

func (p *Probe) run(ctx context.Context) domain.TransportSupport {
	servers := []webrtc.ICEServer{{URLs: p.cfg.STUNServers}}
	if p.cfg.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{p.cfg.TURNServer},
			Username:   p.cfg.TURNUser,
			Credential: p.cfg.TURNSecret,
		})
	}

	pc, err := p.newConn(webrtc.Configuration{
		ICEServers:           servers,
		ICETransportPolicy:   webrtc.ICETransportPolicyAll,
		BundlePolicy:         webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy:        webrtc.RTCPMuxPolicyRequire,
		ICECandidatePoolSize: 5,
	})
	if err != nil {
		return domain.TransportSupport{
			Supported: false,
			Reason:    fmt.Sprintf("peer transport is not available: %v", err),
		}
	}
	defer pc.Close()

	dc, err := pc.CreateDataChannel("probe", nil)
	if err != nil {
		return domain.TransportSupport{
			Supported: false,
			Reason:    fmt.Sprintf("peer transport is not available: data channel: %v", err),
		}
	}
	if dc != nil {
		defer dc.Close()
	}

	candidate := make(chan struct{}, 1)
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		select {
		case candidate <- struct{}{}:
		default:
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return domain.TransportSupport{
			Supported: false,
			Reason:    fmt.Sprintf("peer transport is not available: create offer: %v", err),
		}
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return domain.TransportSupport{
			Supported: false,
			Reason:    fmt.Sprintf("peer transport is not available: local description: %v", err),
		}
	}

	select {
	case <-candidate:
		return domain.TransportSupport{Supported: true}
	case <-ctx.Done():
		return domain.TransportSupport{
			Supported: false,
			Reason:    "peer transport is blocked: probe cancelled before a candidate was discovered",
		}
	case <-time.After(p.cfg.Timeout):
		return domain.TransportSupport{
			Supported: false,
			Reason: fmt.Sprintf(
				"peer transport is blocked: no network candidates discovered within %s; check firewall settings and allow UDP traffic to STUN servers",
				p.cfg.Timeout,
			),
		}
	}
}
