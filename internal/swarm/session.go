package swarm

import (
	"context"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"streambridge/internal/bridge"
	"streambridge/internal/domain"
)

// Session is the live record for one swarm join. Telemetry callbacks mutate
// it in place; everyone else reads point-in-time snapshots.
type Session struct {
	infoHash  string
	magnetURI string
	category  domain.Category

	mu            sync.RWMutex
	name          string
	files         []domain.SessionFile
	sources       map[string]*bridge.Source
	progress      float64
	downloadRate  int64
	uploadRate    int64
	peers         int
	ready         bool
	recoveries    int
	lastTelemetry time.Time

	torrent *torrent.Torrent

	startedAt time.Time
	readyCh   chan struct{}
	cancel    context.CancelFunc
}

func newSession(infoHash, magnetURI string, category domain.Category) *Session {
	return &Session{
		infoHash:  infoHash,
		magnetURI: magnetURI,
		category:  category,
		sources:   make(map[string]*bridge.Source),
		startedAt: time.Now(),
		readyCh:   make(chan struct{}),
	}
}

func (s *Session) InfoHash() string { return s.infoHash }

// Ready returns a channel closed once the file manifest is populated and
// every file has been bridged.
func (s *Session) Ready() <-chan struct{} { return s.readyCh }

func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]domain.SessionFile, len(s.files))
	copy(files, s.files)
	return domain.SessionSnapshot{
		InfoHash:      s.infoHash,
		MagnetURI:     s.magnetURI,
		Name:          s.name,
		Category:      s.category,
		Files:         files,
		Progress:      s.progress,
		DownloadRate:  s.downloadRate,
		UploadRate:    s.uploadRate,
		Peers:         s.peers,
		Ready:         s.ready,
		Recoveries:    s.recoveries,
		StartedAt:     s.startedAt,
		LastTelemetry: s.lastTelemetry,
	}
}

// Source returns the bridged playback source for a file path in the session.
func (s *Session) Source(path string) (*bridge.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[path]
	return src, ok
}

func (s *Session) setTorrent(t *torrent.Torrent) {
	s.mu.Lock()
	s.torrent = t
	s.mu.Unlock()
}

func (s *Session) getTorrent() *torrent.Torrent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.torrent
}

func (s *Session) markReady(name string, files []domain.SessionFile, sources map[string]*bridge.Source) {
	s.mu.Lock()
	alreadyReady := s.ready
	s.name = name
	s.files = files
	s.sources = sources
	s.ready = true
	s.mu.Unlock()
	if !alreadyReady {
		close(s.readyCh)
	}
}

func (s *Session) updateTelemetry(progress float64, downloadRate, uploadRate int64, peers int) {
	s.mu.Lock()
	s.progress = progress
	s.downloadRate = downloadRate
	s.uploadRate = uploadRate
	s.peers = peers
	s.lastTelemetry = time.Now()
	s.mu.Unlock()
}

func (s *Session) noteRecovery() int {
	s.mu.Lock()
	s.recoveries++
	n := s.recoveries
	s.mu.Unlock()
	return n
}

func (s *Session) recoveryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recoveries
}
