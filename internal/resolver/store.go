package resolver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/entitlement"
)

// CachedVerdict is the last verdict obtained from the server.
type CachedVerdict struct {
	Allowed     bool               `json:"allowed"`
	Reason      entitlement.Reason `json:"reason"`
	FetchedAt   time.Time          `json:"fetched_at"`
	TrialEndAt  time.Time          `json:"trial_end_at"`
	ActiveUntil *time.Time         `json:"active_until,omitempty"`
}

// Store is the device-local preference store used for offline continuity.
// Load returns nil, nil when nothing has been cached yet.
type Store interface {
	Load(ctx context.Context) (*CachedVerdict, error)
	Save(ctx context.Context, v CachedVerdict) error
	LoadFingerprint(ctx context.Context) (string, error)
	SaveFingerprint(ctx context.Context, fp string) error
}

type MemoryStore struct {
	mu      sync.Mutex
	verdict *CachedVerdict
	fp      string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context) (*CachedVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict == nil {
		return nil, nil
	}
	v := *s.verdict
	return &v, nil
}

func (s *MemoryStore) Save(_ context.Context, v CachedVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdict = &v
	return nil
}

func (s *MemoryStore) LoadFingerprint(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fp, nil
}

func (s *MemoryStore) SaveFingerprint(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fp = fp
	return nil
}

// fileState is the on-disk layout of FileStore.
type fileState struct {
	Fingerprint string         `json:"fingerprint,omitempty"`
	Verdict     *CachedVerdict `json:"verdict,omitempty"`
	Signature   string         `json:"signature"`
}

// FileStore keeps the cache in a JSON file signed with HMAC-SHA256. A file
// whose signature does not match is treated as empty, so editing fetched_at
// by hand cannot extend the offline grace window.
type FileStore struct {
	path   string
	secret []byte
	mu     sync.Mutex
}

func NewFileStore(path, secret string) *FileStore {
	return &FileStore{path: path, secret: []byte(secret)}
}

func (s *FileStore) Load(_ context.Context) (*CachedVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		return nil, err
	}
	return st.Verdict, nil
}

func (s *FileStore) Save(_ context.Context, v CachedVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		st = fileState{}
	}
	v.FetchedAt = v.FetchedAt.UTC()
	st.Verdict = &v
	return s.write(st)
}

func (s *FileStore) LoadFingerprint(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		return "", err
	}
	return st.Fingerprint, nil
}

func (s *FileStore) SaveFingerprint(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		st = fileState{}
	}
	st.Fingerprint = fp
	return s.write(st)
}

func (s *FileStore) read() (fileState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, fmt.Errorf("read verdict cache: %w", err)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("verdict cache unreadable, ignoring", "path", s.path, "error", err)
		return fileState{}, nil
	}

	want, err := s.sign(st)
	if err != nil {
		return fileState{}, err
	}
	if !hmac.Equal([]byte(want), []byte(st.Signature)) {
		slog.Warn("verdict cache signature mismatch, ignoring", "path", s.path)
		return fileState{}, nil
	}
	return st, nil
}

func (s *FileStore) write(st fileState) error {
	sig, err := s.sign(st)
	if err != nil {
		return err
	}
	st.Signature = sig

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode verdict cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".entitlement-*.tmp")
	if err != nil {
		return fmt.Errorf("write verdict cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write verdict cache: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write verdict cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write verdict cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write verdict cache: %w", err)
	}
	return nil
}

// sign computes the HMAC over everything but the signature itself.
func (s *FileStore) sign(st fileState) (string, error) {
	st.Signature = ""
	payload, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode verdict cache: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
