package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	legacyFileName   = "messages.json"
	defaultIOSlots   = 8
	defaultLockCap   = 1000
	DefaultRetention = 7 * 24 * time.Hour
)

// Store persists per-sender conversation records, profiles and history-sync
// markers as files under <dir>/messages. Every read-modify-write runs under
// the sender's registry lock; writes are atomic (temp file + rename) so a
// partially written record never becomes visible.
type Store struct {
	dir       string
	retention time.Duration
	locks     *LockRegistry
	ioSem     chan struct{}
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Store)

// WithRetention overrides the rolling retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithLockCapacity overrides the lock registry cap.
func WithLockCapacity(n int) Option {
	return func(s *Store) { s.locks = NewLockRegistry(n) }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(dataDir string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		dir:       filepath.Join(dataDir, "messages"),
		retention: DefaultRetention,
		locks:     NewLockRegistry(defaultLockCap),
		ioSem:     make(chan struct{}, defaultIOSlots),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure messages dir: %w", err)
	}
	if err := s.migrateLegacy(dataDir); err != nil {
		logger.Warn("legacy message migration failed", zap.Error(err))
	}
	return s, nil
}

// Append stores one message at the tail of the sender's record.
func (s *Store) Append(dir Direction, sender, text, summary string, senderID int64) (Message, error) {
	msg := Message{
		Timestamp: s.now(),
		Direction: dir,
		Sender:    sender,
		Text:      text,
		Summary:   summary,
		SenderID:  senderID,
	}
	key := SenderKey(senderID)
	unlock := s.locks.Lock(key)
	defer unlock()

	msgs, err := s.loadLocked(key)
	if err != nil {
		return Message{}, err
	}
	msgs = append(msgs, msg)
	if err := s.saveLocked(key, msgs); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Recent returns the sender's last limit messages, oldest first.
func (s *Store) Recent(senderID int64, limit int) ([]Message, error) {
	key := SenderKey(senderID)
	unlock := s.locks.Lock(key)
	defer unlock()

	msgs, err := s.loadLocked(key)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// ImportBatch merges historical messages into the sender's record and
// re-sorts by timestamp. Entries are not de-duplicated: importing the same
// batch twice duplicates them.
func (s *Store) ImportBatch(senderID int64, batch []Message) error {
	if len(batch) == 0 {
		return nil
	}
	key := SenderKey(senderID)
	unlock := s.locks.Lock(key)
	defer unlock()

	msgs, err := s.loadLocked(key)
	if err != nil {
		return err
	}
	msgs = append(msgs, batch...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return s.saveLocked(key, msgs)
}

// LoadAll returns every sender's record merged and sorted by time.
func (s *Store) LoadAll() ([]Message, error) {
	keys, err := s.ListSenders()
	if err != nil {
		return nil, err
	}
	var all []Message
	for _, key := range keys {
		unlock := s.locks.Lock(key)
		msgs, err := s.loadLocked(key)
		unlock()
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}

// ListSenders returns the storage keys of all senders with a record on disk.
func (s *Store) ListSenders() ([]string, error) {
	s.acquireIO()
	entries, err := os.ReadDir(s.dir)
	s.releaseIO()
	if err != nil {
		return nil, fmt.Errorf("read messages dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}

// SweepRetention prunes every sender record once. Retention is normally
// enforced lazily on read; this backs the optional scheduled sweep.
func (s *Store) SweepRetention() error {
	keys, err := s.ListSenders()
	if err != nil {
		return err
	}
	var firstErr error
	for _, key := range keys {
		unlock := s.locks.Lock(key)
		_, err := s.loadLocked(key)
		unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadProfile returns the sender's profile markdown, empty if none exists.
func (s *Store) LoadProfile(senderID int64) (string, error) {
	key := SenderKey(senderID)
	unlock := s.locks.Lock(key)
	defer unlock()

	s.acquireIO()
	defer s.releaseIO()
	data, err := os.ReadFile(s.profilePath(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read profile: %w", err)
	}
	return string(data), nil
}

// SaveProfile replaces the sender's profile markdown.
func (s *Store) SaveProfile(senderID int64, content string) error {
	key := SenderKey(senderID)
	unlock := s.locks.Lock(key)
	defer unlock()

	s.acquireIO()
	defer s.releaseIO()
	return atomicWrite(s.profilePath(key), []byte(content))
}

// IsHistorySynced reports whether the one-time platform backfill ran for the
// sender.
func (s *Store) IsHistorySynced(senderID int64) bool {
	s.acquireIO()
	defer s.releaseIO()
	_, err := os.Stat(s.markerPath(SenderKey(senderID)))
	return err == nil
}

// MarkHistorySynced records that the one-time platform backfill completed.
func (s *Store) MarkHistorySynced(senderID int64) error {
	s.acquireIO()
	defer s.releaseIO()
	return atomicWrite(s.markerPath(SenderKey(senderID)), []byte(s.now().UTC().Format(time.RFC3339)+"\n"))
}

func (s *Store) recordPath(key string) string  { return filepath.Join(s.dir, key+".json") }
func (s *Store) profilePath(key string) string { return filepath.Join(s.dir, key+".md") }
func (s *Store) markerPath(key string) string  { return filepath.Join(s.dir, key+".synced") }

func (s *Store) acquireIO() { s.ioSem <- struct{}{} }
func (s *Store) releaseIO() { <-s.ioSem }

// loadLocked reads the sender's record and applies retention: entries older
// than the window are dropped and the pruned record is persisted back.
// Caller holds the sender lock.
func (s *Store) loadLocked(key string) ([]Message, error) {
	s.acquireIO()
	data, err := os.ReadFile(s.recordPath(key))
	s.releaseIO()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}

	cutoff := s.now().Add(-s.retention)
	kept := msgs[:0]
	for _, m := range msgs {
		if m.Timestamp.After(cutoff) {
			kept = append(kept, m)
		}
	}
	if len(kept) < len(msgs) {
		if err := s.saveLocked(key, kept); err != nil {
			s.logger.Warn("persisting pruned record failed",
				zap.String("sender", key), zap.Error(err))
		}
	}
	return kept, nil
}

// saveLocked persists the record atomically. An empty record removes the
// file. Caller holds the sender lock.
func (s *Store) saveLocked(key string, msgs []Message) error {
	s.acquireIO()
	defer s.releaseIO()
	path := s.recordPath(key)
	if len(msgs) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove empty record: %w", err)
		}
		return nil
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return atomicWrite(path, data)
}

// atomicWrite replaces path in one step so readers never observe a partial
// write.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

// migrateLegacy splits a pre-per-sender data/messages.json into per-sender
// files, then renames the old file out of the way.
func (s *Store) migrateLegacy(dataDir string) error {
	legacy := filepath.Join(dataDir, legacyFileName)
	data, err := os.ReadFile(legacy)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read legacy file: %w", err)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("decode legacy file: %w", err)
	}
	grouped := make(map[string][]Message)
	for _, m := range msgs {
		key := SenderKey(m.SenderID)
		grouped[key] = append(grouped[key], m)
	}
	for key, group := range grouped {
		if err := s.saveLocked(key, group); err != nil {
			return err
		}
	}
	if err := os.Rename(legacy, legacy+".bak"); err != nil {
		return fmt.Errorf("retire legacy file: %w", err)
	}
	s.logger.Info("migrated legacy message log",
		zap.Int("messages", len(msgs)), zap.Int("senders", len(grouped)))
	return nil
}
