package swarm

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/sirupsen/logrus"

	"streambridge/internal/bridge"
	"streambridge/internal/domain"
	"streambridge/internal/resolver"
)

// Manager owns the single torrent client instance and coordinates session
// creation, dedup, telemetry, peer-loss recovery, and teardown.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	StartSession(ctx context.Context, summary domain.ContentSummary) (domain.SessionSnapshot, error)
	Sessions() []domain.SessionSnapshot
	Session(infoHash string) (domain.SessionSnapshot, error)
	StopSession(infoHash string) error
	WaitReady(ctx context.Context, infoHash string) error
	FileSource(infoHash, filePath string) (*bridge.Source, error)
	LargestVideoReader(infoHash string) (io.ReadCloser, domain.FileEntry, error)
}

type Config struct {
	DataDir        string
	ListenPort     int // 0 picks an ephemeral port
	DisableDHT     bool
	Trackers       []string
	StatusInterval time.Duration
	NoPeerDelay    time.Duration
	MaxRecoveries  int
	StreamRefBase  string
	Logger         *logrus.Logger
}

type manager struct {
	cfg      Config
	client   *torrent.Client
	registry *Registry
	bridge   *bridge.Builder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(cfg Config, registry *Registry, builder *bridge.Builder) Manager {
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = 2 * time.Second
	}
	if cfg.NoPeerDelay == 0 {
		cfg.NoPeerDelay = 5 * time.Second
	}
	if cfg.MaxRecoveries == 0 {
		cfg.MaxRecoveries = 5
	}
	if cfg.StreamRefBase == "" {
		cfg.StreamRefBase = "/api/sessions"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if len(cfg.Trackers) == 0 {
		cfg.Trackers = defaultTrackers()
	}
	return &manager{
		cfg:      cfg,
		registry: registry,
		bridge:   builder,
	}
}

func (m *manager) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = m.cfg.DataDir
	clientConfig.ListenPort = m.cfg.ListenPort
	clientConfig.NoDHT = m.cfg.DisableDHT
	clientConfig.NoUpload = false
	clientConfig.Seed = false

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return fmt.Errorf("create torrent client: %w", err)
	}

	m.client = client
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("swarm manager started, data dir: %s", m.cfg.DataDir)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	if m.client != nil {
		m.client.Close()
	}
	m.registry.Clear()
	m.cfg.Logger.Info("swarm manager stopped")
}

// StartSession joins the swarm for the resolved reference. Idempotent by info
// hash: a concurrent or later call for the same content returns the existing
// session without a second swarm join.
func (m *manager) StartSession(ctx context.Context, summary domain.ContentSummary) (domain.SessionSnapshot, error) {
	if summary.Kind == domain.KindURL {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: direct URLs bypass the swarm path", domain.ErrInvalidReference)
	}
	if summary.InfoHash == "" {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: missing info hash", domain.ErrInvalidReference)
	}

	magnet := canonicalMagnet(summary, m.cfg.Trackers)
	sessCtx, cancel := context.WithCancel(m.ctx)
	s := newSession(summary.InfoHash, magnet, summary.Category)
	// cancel is wired before the record is published and never written again,
	// so StopSession always finds it set.
	s.cancel = cancel

	existing, loaded := m.registry.InsertIfAbsent(s)
	if loaded {
		cancel()
		m.cfg.Logger.WithField("info_hash", summary.InfoHash).Debug("session already active, reusing")
		return existing.Snapshot(), nil
	}

	t, err := m.client.AddMagnet(magnet)
	if err != nil {
		m.registry.Delete(summary.InfoHash)
		cancel()
		return domain.SessionSnapshot{}, &domain.TransportError{Err: err}
	}
	s.setTorrent(t)

	m.wg.Add(1)
	go m.run(sessCtx, s)

	return s.Snapshot(), nil
}

func (m *manager) run(ctx context.Context, s *Session) {
	defer m.wg.Done()
	logger := m.cfg.Logger.WithField("info_hash", s.InfoHash())

	t := s.getTorrent()
	for _, tracker := range m.cfg.Trackers {
		t.AddTrackers([][]string{{tracker}})
	}

	select {
	case <-ctx.Done():
		logger.Info("session cancelled before metadata arrived")
		return
	case <-t.GotInfo():
	}

	files := make([]domain.SessionFile, 0, len(t.Files()))
	sources := make(map[string]*bridge.Source, len(t.Files()))
	for _, f := range t.Files() {
		f := f
		rel := f.DisplayPath()
		entry := domain.FileEntry{
			Name: path.Base(rel),
			Path: rel,
			Size: f.Length(),
			Kind: resolver.ClassifyFile(rel),
		}
		ref := m.streamRef(s.InfoHash(), rel)
		src := m.bridge.Bridge(entry, ref, func() (io.ReadCloser, error) {
			return f.NewReader(), nil
		})
		sources[rel] = src
		files = append(files, domain.SessionFile{FileEntry: entry, StreamRef: ref})
	}

	// Readiness is only exposed after every file has been bridged.
	s.markReady(t.Name(), files, sources)
	t.DownloadAll()
	logger.Infof("session ready: %s (%d files)", t.Name(), len(files))

	lastCompleted := t.BytesCompleted()
	initialStats := t.Stats()
	lastUploaded := initialStats.BytesWrittenData.Int64()
	lastTime := time.Now()
	var zeroPeersSince time.Time
	recoveryExhausted := false

	ticker := time.NewTicker(m.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("session stopped")
			return
		case <-ticker.C:
			t = s.getTorrent()

			total := t.Length()
			completed := t.BytesCompleted()
			progress := 0.0
			if total > 0 {
				progress = float64(completed) / float64(total)
				if progress > 1 {
					progress = 1
				}
			}

			stats := t.Stats()
			uploaded := stats.BytesWrittenData.Int64()
			elapsed := time.Since(lastTime).Seconds()
			var downloadRate, uploadRate int64
			if elapsed > 0 {
				downloadRate = int64(float64(completed-lastCompleted) / elapsed)
				uploadRate = int64(float64(uploaded-lastUploaded) / elapsed)
			}
			if downloadRate < 0 {
				downloadRate = 0
			}
			lastCompleted = completed
			lastUploaded = uploaded
			lastTime = time.Now()

			peers := stats.ActivePeers
			s.updateTelemetry(progress, downloadRate, uploadRate, peers)

			if peers > 0 || completed == total {
				zeroPeersSince = time.Time{}
				continue
			}
			if zeroPeersSince.IsZero() {
				zeroPeersSince = time.Now()
				continue
			}
			if time.Since(zeroPeersSince) < m.cfg.NoPeerDelay {
				continue
			}
			zeroPeersSince = time.Time{}

			if s.recoveryCount() >= m.cfg.MaxRecoveries {
				if !recoveryExhausted {
					recoveryExhausted = true
					logger.Warnf("peer starvation persists after %d recoveries, giving up on recovery", m.cfg.MaxRecoveries)
				}
				continue
			}
			m.recoverSession(ctx, s, logger)
			lastCompleted = 0
			lastUploaded = 0
		}
	}
}

// recoverSession drops the swarm join and re-adds the same info hash with the
// full tracker list. Best effort: failures are logged, never surfaced, and the
// session record is reused so no second session appears for the identifier.
func (m *manager) recoverSession(ctx context.Context, s *Session, logger *logrus.Entry) {
	attempt := s.noteRecovery()
	logger.Warnf("no peers, re-adding swarm join (attempt %d/%d)", attempt, m.cfg.MaxRecoveries)

	if t := s.getTorrent(); t != nil {
		t.Drop()
	}

	t, err := m.client.AddMagnet(s.magnetURI)
	if err != nil {
		logger.Warnf("re-add swarm join: %v", err)
		return
	}
	for _, tracker := range m.cfg.Trackers {
		t.AddTrackers([][]string{{tracker}})
	}
	s.setTorrent(t)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
		case <-t.GotInfo():
			t.DownloadAll()
		}
	}()
}

func (m *manager) Sessions() []domain.SessionSnapshot {
	records := m.registry.List()
	out := make([]domain.SessionSnapshot, 0, len(records))
	for _, s := range records {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (m *manager) Session(infoHash string) (domain.SessionSnapshot, error) {
	s, ok := m.registry.Get(infoHash)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return s.Snapshot(), nil
}

// StopSession tears down the swarm join and removes the registry entry.
// Unknown identifiers are a no-op success.
func (m *manager) StopSession(infoHash string) error {
	s, ok := m.registry.Get(infoHash)
	if !ok {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	if t := s.getTorrent(); t != nil {
		t.Drop()
	}
	m.registry.Delete(infoHash)
	m.cfg.Logger.WithField("info_hash", infoHash).Info("session stopped")
	return nil
}

// WaitReady blocks until the session's manifest is populated and every file
// bridged, or the context ends.
func (m *manager) WaitReady(ctx context.Context, infoHash string) error {
	s, ok := m.registry.Get(infoHash)
	if !ok {
		return domain.ErrSessionNotFound
	}
	select {
	case <-s.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *manager) FileSource(infoHash, filePath string) (*bridge.Source, error) {
	s, ok := m.registry.Get(infoHash)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	src, ok := s.Source(filePath)
	if !ok {
		return nil, fmt.Errorf("file %q not found in session %s", filePath, infoHash)
	}
	return src, nil
}

// LargestVideoReader opens a stream over the biggest video file in a ready
// session, for forwarding to the transcode pipeline.
func (m *manager) LargestVideoReader(infoHash string) (io.ReadCloser, domain.FileEntry, error) {
	s, ok := m.registry.Get(infoHash)
	if !ok {
		return nil, domain.FileEntry{}, domain.ErrSessionNotFound
	}

	snap := s.Snapshot()
	var best domain.FileEntry
	for _, f := range snap.Files {
		if f.Kind == domain.MediaVideo && f.Size > best.Size {
			best = f.FileEntry
		}
	}
	if best.Path == "" {
		return nil, domain.FileEntry{}, fmt.Errorf("no video file found in session %s", infoHash)
	}

	t := s.getTorrent()
	if t == nil {
		return nil, domain.FileEntry{}, fmt.Errorf("session %s has no swarm handle", infoHash)
	}
	for _, f := range t.Files() {
		if f.DisplayPath() == best.Path {
			return f.NewReader(), best, nil
		}
	}
	return nil, domain.FileEntry{}, fmt.Errorf("file %q not found in swarm handle", best.Path)
}

func (m *manager) streamRef(infoHash, filePath string) string {
	return fmt.Sprintf("%s/%s/files/%s", m.cfg.StreamRefBase, infoHash, filePath)
}

// canonicalMagnet returns the magnet form for a summary, synthesizing one for
// descriptor references and merging all known trackers.
func canonicalMagnet(summary domain.ContentSummary, extraTrackers []string) string {
	if summary.MagnetURI != "" {
		return summary.MagnetURI
	}

	uri := "magnet:?xt=urn:btih:" + summary.InfoHash
	if summary.Title != "" {
		uri += "&dn=" + url.QueryEscape(summary.Title)
	}
	if summary.TotalSize > 0 {
		uri += "&xl=" + strconv.FormatInt(summary.TotalSize, 10)
	}
	seen := map[string]struct{}{}
	for _, tr := range append(append([]string(nil), summary.Trackers...), extraTrackers...) {
		if _, ok := seen[tr]; ok {
			continue
		}
		seen[tr] = struct{}{}
		uri += "&tr=" + url.QueryEscape(tr)
	}
	return uri
}

func defaultTrackers() []string {
	return []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"udp://tracker.openbittorrent.com:6969/announce",
		"udp://open.stealth.si:80/announce",
		"udp://exodus.desync.com:6969/announce",
		"udp://tracker.torrent.eu.org:451/announce",
		"wss://tracker.webtorrent.dev",
		"wss://tracker.openwebtorrent.com",
		"wss://tracker.btorrent.xyz",
	}
}

var _ Manager = (*manager)(nil)
