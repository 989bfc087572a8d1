package bridge

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"streambridge/internal/domain"
	"streambridge/internal/resolver"
)

// Sink is an incrementally-appendable playback target, mirroring the
// media-source buffer contract: appends are rejected while the sink is busy
// and must be queued by the caller.
type Sink interface {
	Append(chunk []byte) error
	Busy() bool
	Finalize() error
}

// SinkFactory opens a sink for the given MIME type. Failures route the file
// to the fully-buffered fallback.
type SinkFactory func(src *Source, mime string) (Sink, error)

// OpenFunc opens a fresh byte stream over the underlying file. The fallback
// path re-opens the stream from the start.
type OpenFunc func() (io.ReadCloser, error)

type Config struct {
	ChunkSize int
	NewSink   SinkFactory
	Logger    *logrus.Logger
}

// Builder bridges swarm file streams into playable sources.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 * 1024
	}
	if cfg.NewSink == nil {
		cfg.NewSink = newMemorySink
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Builder{cfg: cfg}
}

// Source exposes one file's playable byte stream. Its reference is populated
// exactly once, by whichever path succeeds; the backing bytes may transparently
// switch from the incremental buffer to the fully-buffered blob.
type Source struct {
	entry domain.FileEntry
	mime  string

	mu       sync.RWMutex
	ref      string
	data     []byte
	complete bool
	fallback bool

	refOnce  sync.Once
	doneOnce sync.Once
	done     chan struct{}
}

func (s *Source) Entry() domain.FileEntry { return s.entry }
func (s *Source) MimeType() string        { return s.mime }

// Done is closed once the source holds the complete file by either path.
func (s *Source) Done() <-chan struct{} { return s.done }

// Reference returns the playback reference, empty until a path succeeds.
func (s *Source) Reference() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ref
}

func (s *Source) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.complete
}

// Fallback reports whether the fully-buffered path produced the bytes.
func (s *Source) Fallback() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback
}

// Reader returns a reader over the bytes received so far and whether the
// source is complete. Complete sources support range requests via Seek.
func (s *Source) Reader() (*bytes.Reader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bytes.NewReader(s.data), s.complete
}

func (s *Source) setRef(ref string) {
	s.refOnce.Do(func() {
		s.mu.Lock()
		s.ref = ref
		s.mu.Unlock()
	})
}

func (s *Source) appendData(chunk []byte) {
	s.mu.Lock()
	s.data = append(s.data, chunk...)
	s.mu.Unlock()
}

func (s *Source) replaceData(blob []byte, fallback bool) {
	s.mu.Lock()
	s.data = blob
	s.fallback = fallback
	s.complete = true
	s.mu.Unlock()
}

func (s *Source) markComplete() {
	s.mu.Lock()
	s.complete = true
	s.mu.Unlock()
}

func (s *Source) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Bridge starts bridging a file stream into a playable source. Video and
// audio entries take the incremental path; everything else is fully buffered
// up front. The returned source is usable immediately.
func (b *Builder) Bridge(entry domain.FileEntry, ref string, open OpenFunc) *Source {
	src := &Source{
		entry: entry,
		mime:  resolver.MimeType(entry.Name),
		done:  make(chan struct{}),
	}

	switch entry.Kind {
	case domain.MediaVideo, domain.MediaAudio:
		go b.stream(src, ref, open)
	default:
		go b.buffer(src, ref, open)
	}
	return src
}

func (b *Builder) stream(src *Source, ref string, open OpenFunc) {
	logger := b.cfg.Logger.WithField("file", src.entry.Path)

	sink, err := b.cfg.NewSink(src, src.mime)
	if err != nil {
		logger.Warnf("attach playback sink: %v, falling back to buffered source", err)
		b.buffer(src, ref, open)
		return
	}
	src.setRef(ref)

	r, err := open()
	if err != nil {
		logger.Warnf("open file stream: %v, falling back to buffered source", err)
		b.buffer(src, ref, open)
		return
	}

	var queue [][]byte
	flush := func() error {
		for len(queue) > 0 {
			if sink.Busy() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			if err := sink.Append(queue[0]); err != nil {
				return err
			}
			queue = queue[1:]
		}
		return nil
	}

	buf := make([]byte, b.cfg.ChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			// Once anything is queued, later chunks queue too so append
			// order is preserved.
			if sink.Busy() || len(queue) > 0 {
				queue = append(queue, chunk)
			} else if err := sink.Append(chunk); err != nil {
				_ = r.Close()
				logger.Warnf("append chunk: %v, falling back to buffered source", err)
				b.buffer(src, ref, open)
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = r.Close()
			logger.Warnf("read file stream: %v, falling back to buffered source", readErr)
			b.buffer(src, ref, open)
			return
		}
	}
	_ = r.Close()

	if err := flush(); err != nil {
		logger.Warnf("drain append queue: %v, falling back to buffered source", err)
		b.buffer(src, ref, open)
		return
	}
	if err := sink.Finalize(); err != nil {
		logger.Warnf("finalize playback source: %v, falling back to buffered source", err)
		b.buffer(src, ref, open)
		return
	}
	src.finish()
	logger.Debug("incremental playback source complete")
}

// buffer accumulates the whole file in memory and only then exposes it.
func (b *Builder) buffer(src *Source, ref string, open OpenFunc) {
	logger := b.cfg.Logger.WithField("file", src.entry.Path)

	r, err := open()
	if err != nil {
		logger.Errorf("open file stream for buffered source: %v", err)
		src.finish()
		return
	}
	defer r.Close()

	blob, err := io.ReadAll(r)
	if err != nil {
		logger.Errorf("buffer file: %v", err)
		src.finish()
		return
	}

	src.replaceData(blob, true)
	src.setRef(ref)
	src.finish()
	logger.Debugf("buffered playback source ready (%d bytes)", len(blob))
}

// memorySink appends straight into the source buffer; it is never busy.
type memorySink struct {
	src *Source
}

func newMemorySink(src *Source, mime string) (Sink, error) {
	return &memorySink{src: src}, nil
}

func (m *memorySink) Append(chunk []byte) error {
	m.src.appendData(chunk)
	return nil
}

func (m *memorySink) Busy() bool { return false }

func (m *memorySink) Finalize() error {
	m.src.markComplete()
	return nil
}

var _ Sink = (*memorySink)(nil)
