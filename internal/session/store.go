package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/nugget/helloclaw/internal/events"
)

// ErrNotFound is returned when a session file does not exist.
var ErrNotFound = errors.New("session not found")

// ErrInvalidID is returned for ids that could not name a session file.
var ErrInvalidID = errors.New("invalid session id")

const archiveDir = "archive"

// Store keeps session transcripts as JSON files. File operations are
// serialized store-wide; [Store.Lock] additionally serializes whole
// conversational turns on one session.
type Store struct {
	dir     string
	archive bool
	logger  *slog.Logger
	bus     *events.Bus

	fileMu sync.Mutex

	lockMu sync.Mutex
	locks  map[string]*sessionLock

	now func() time.Time
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore opens (creating if needed) a session directory. With archive
// set, deleted sessions are kept zstd-compressed under dir/archive.
func NewStore(dir string, archive bool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{
		dir:     dir,
		archive: archive,
		logger:  logger.With("component", "sessions"),
		locks:   make(map[string]*sessionLock),
		now:     time.Now,
	}, nil
}

// SetEventBus publishes session lifecycle events to bus.
func (s *Store) SetEventBus(bus *events.Bus) { s.bus = bus }

// NewID returns a fresh short session id.
func NewID() string {
	return uuid.NewString()[:8]
}

// ValidID reports whether id can name a session file.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\.`) && len(id) <= 64
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Lock blocks until the caller holds the turn lock for id and returns
// the function that releases it. Different ids never contend.
func (s *Store) Lock(id string) (unlock func()) {
	s.lockMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.lockMu.Unlock()
	}
}

// Create starts an empty session with a new id.
func (s *Store) Create() (*Session, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	id := NewID()
	for {
		if _, err := os.Stat(s.path(id)); errors.Is(err, fs.ErrNotExist) {
			break
		}
		id = NewID()
	}

	now := s.now()
	sess := &Session{ID: id, CreatedAt: now, UpdatedAt: now, History: []Message{}}
	if err := s.writeLocked(sess); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session", id)
	s.bus.Emit(events.SourceSession, events.KindSessionCreated, map[string]any{"session_id": id})
	return sess, nil
}

// Exists reports whether a session file is present.
func (s *Store) Exists(id string) bool {
	if !ValidID(id) {
		return false
	}
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Load reads a session.
func (s *Store) Load(id string) (*Session, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id string) (*Session, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.ID == "" {
		sess.ID = id
	}
	return &sess, nil
}

// Append adds messages to the end of a session's history, creating the
// session file if it does not exist yet.
func (s *Store) Append(id string, msgs ...Message) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	sess, err := s.readLocked(id)
	if errors.Is(err, ErrNotFound) {
		sess = &Session{ID: id, CreatedAt: s.now()}
	} else if err != nil {
		return err
	}
	sess.History = append(sess.History, msgs...)
	sess.UpdatedAt = s.now()
	return s.writeLocked(sess)
}

// Clear empties a session's history but keeps the session.
func (s *Store) Clear(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	sess, err := s.readLocked(id)
	if err != nil {
		return err
	}
	sess.History = []Message{}
	sess.UpdatedAt = s.now()
	if err := s.writeLocked(sess); err != nil {
		return err
	}
	s.logger.Info("session cleared", "session", id)
	s.bus.Emit(events.SourceSession, events.KindSessionCleared, map[string]any{"session_id": id})
	return nil
}

// Delete removes a session. When archiving is enabled the transcript is
// first written to archive/{id}.json.zst.
func (s *Store) Delete(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	if s.archive {
		if err := s.writeArchive(id, data); err != nil {
			return fmt.Errorf("archive session %s: %w", id, err)
		}
	}
	if err := os.Remove(s.path(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	s.logger.Info("session deleted", "session", id, "archived", s.archive)
	s.bus.Emit(events.SourceSession, events.KindSessionDeleted, map[string]any{
		"session_id": id,
		"archived":   s.archive,
	})
	return nil
}

func (s *Store) writeArchive(id string, data []byte) error {
	dir := filepath.Join(s.dir, archiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, id+".json.zst"))
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadArchived reads a session previously removed with archiving on.
func (s *Store) LoadArchived(id string) (*Session, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	f, err := os.Open(filepath.Join(s.dir, archiveDir, id+".json.zst"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var sess Session
	if err := json.NewDecoder(dec).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode archived session %s: %w", id, err)
	}
	return &sess, nil
}

// List returns every session, most recently updated first.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		sess, err := s.readLocked(id)
		if err != nil {
			s.logger.Warn("skipping unreadable session", "session", id, "error", err)
			continue
		}
		info := Info{
			ID:           sess.ID,
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
			MessageCount: len(sess.History),
		}
		if conv := Conversation(sess.History); len(conv) > 0 {
			info.Preview = truncate(conv[0].Content, 80)
		}
		out = append(out, info)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// writeLocked atomically replaces the session file.
func (s *Store) writeLocked(sess *Session) error {
	if sess.History == nil {
		sess.History = []Message{}
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+sess.ID+".json.tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(sess.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	return nil
}
