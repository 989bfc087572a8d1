package swarm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"streambridge/internal/bridge"
	"streambridge/internal/domain"
)

const testInfoHash = "c12fe1c06bba254a9dc9f519b335aa7c1367a88a"

func newTestManager(t *testing.T) Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	m := NewManager(Config{
		DataDir:    t.TempDir(),
		DisableDHT: true,
		Trackers:   []string{"udp://tracker.invalid:1337/announce"},
		Logger:     logger,
	}, NewRegistry(), bridge.NewBuilder(bridge.Config{Logger: logger}))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	t.Cleanup(m.Shutdown)
	return m
}

func magnetSummary() domain.ContentSummary {
	return domain.ContentSummary{
		Kind:      domain.KindMagnet,
		InfoHash:  testInfoHash,
		Title:     "Example.Movie.1080p",
		Category:  domain.CategoryMovie,
		MagnetURI: "magnet:?xt=urn:btih:" + testInfoHash + "&dn=Example.Movie.1080p",
	}
}

func TestStartSessionIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.StartSession(ctx, magnetSummary())
	if err != nil {
		t.Fatalf("first StartSession: %v", err)
	}
	second, err := m.StartSession(ctx, magnetSummary())
	if err != nil {
		t.Fatalf("second StartSession: %v", err)
	}

	if first.InfoHash != second.InfoHash {
		t.Errorf("info hashes differ: %q vs %q", first.InfoHash, second.InfoHash)
	}
	if got := len(m.Sessions()); got != 1 {
		t.Errorf("sessions after duplicate start = %d, want 1", got)
	}
}

func TestStartSessionRejectsURLKind(t *testing.T) {
	m := newTestManager(t)
	_, err := m.StartSession(context.Background(), domain.ContentSummary{
		Kind:      domain.KindURL,
		SourceURL: "https://cdn.example.com/clip.mp4",
	})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Errorf("err = %v, want ErrInvalidReference", err)
	}
}

func TestStartSessionRequiresInfoHash(t *testing.T) {
	m := newTestManager(t)
	_, err := m.StartSession(context.Background(), domain.ContentSummary{Kind: domain.KindMagnet})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Errorf("err = %v, want ErrInvalidReference", err)
	}
}

func TestStopSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.StartSession(ctx, magnetSummary()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.StopSession(testInfoHash); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if got := len(m.Sessions()); got != 0 {
		t.Errorf("sessions after stop = %d, want 0", got)
	}
	if _, err := m.Session(testInfoHash); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Session after stop err = %v, want ErrSessionNotFound", err)
	}
}

func TestStartSessionJoinFailureRemovesPlaceholder(t *testing.T) {
	m := newTestManager(t)
	summary := domain.ContentSummary{
		Kind:      domain.KindMagnet,
		InfoHash:  "zz", // not a valid btih, the client rejects the join
		MagnetURI: "magnet:?xt=urn:btih:zz",
	}

	_, err := m.StartSession(context.Background(), summary)
	var transportErr *domain.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("err = %T (%v), want *domain.TransportError", err, err)
	}
	if got := len(m.Sessions()); got != 0 {
		t.Errorf("sessions after failed join = %d, want placeholder removed", got)
	}
}

func TestStartStopConcurrentSameHash(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.StartSession(ctx, magnetSummary())
		}()
		go func() {
			defer wg.Done()
			_ = m.StopSession(testInfoHash)
		}()
	}
	wg.Wait()

	if err := m.StopSession(testInfoHash); err != nil {
		t.Fatalf("final StopSession: %v", err)
	}
	if got := len(m.Sessions()); got != 0 {
		t.Errorf("sessions after stop = %d, want 0", got)
	}
}

func TestStopSessionUnknownIsNoop(t *testing.T) {
	m := newTestManager(t)
	if err := m.StopSession("deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"); err != nil {
		t.Errorf("StopSession on unknown hash: %v", err)
	}
}

func TestWaitReadyUnknownSession(t *testing.T) {
	m := newTestManager(t)
	err := m.WaitReady(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestFileSourceUnknownSession(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.FileSource("deadbeef", "movie.mkv"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestCanonicalMagnetPrefersOriginal(t *testing.T) {
	summary := magnetSummary()
	if got := canonicalMagnet(summary, []string{"udp://extra.invalid/announce"}); got != summary.MagnetURI {
		t.Errorf("canonicalMagnet rewrote an original magnet: %q", got)
	}
}

func TestCanonicalMagnetSynthesized(t *testing.T) {
	summary := domain.ContentSummary{
		Kind:      domain.KindDescriptor,
		InfoHash:  testInfoHash,
		Title:     "Example Movie",
		TotalSize: 1024,
		Trackers:  []string{"udp://a.invalid/announce", "udp://b.invalid/announce"},
	}
	got := canonicalMagnet(summary, []string{"udp://b.invalid/announce", "udp://c.invalid/announce"})

	if !strings.HasPrefix(got, "magnet:?xt=urn:btih:"+testInfoHash) {
		t.Fatalf("magnet = %q", got)
	}
	if !strings.Contains(got, "&dn=Example+Movie") {
		t.Errorf("display name missing or unescaped: %q", got)
	}
	if !strings.Contains(got, "&xl=1024") {
		t.Errorf("length hint missing: %q", got)
	}
	if strings.Count(got, "&tr=") != 3 {
		t.Errorf("trackers not merged and deduplicated: %q", got)
	}
}
