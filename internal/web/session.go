package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-planner/internal/common/config"
	"ai-planner/internal/common/database"
	"ai-planner/internal/models"
)

const (
	sessionKeyPrefix = "planner:session:"
	lockKeyPrefix    = "planner:lock:"
)

// MemoryStore keeps sessions in process. Expired sessions are dropped lazily
// on Load and in bulk by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*models.Session
	locks    map[string]string
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*models.Session),
		locks:    make(map[string]string),
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if sess.IsExpired() {
		delete(s.sessions, id)
		return nil, models.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.Touch(s.ttl)
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Acquire(_ context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.locks[id]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	s.locks[id] = token
	return token, true, nil
}

func (s *MemoryStore) Release(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[id] == token {
		delete(s.locks, id)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.IsExpired() {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RedisStore keeps sessions as JSON values with a TTL so several server
// instances can share them. The generation lock is a SETNX key holding the
// owner's token that expires on its own if the holder dies.
type RedisStore struct {
	redis   *database.RedisClient
	ttl     time.Duration
	lockTTL time.Duration
}

func NewRedisStore(client *database.RedisClient, ttl, lockTTL time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl, lockTTL: lockTTL}
}

func (s *RedisStore) Load(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.redis.GetJSON(ctx, sessionKeyPrefix+id, &sess)
	if errors.Is(err, database.ErrNotFound) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, session *models.Session) error {
	session.Touch(s.ttl)
	if err := s.redis.SetJSON(ctx, sessionKeyPrefix+session.ID, session, s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, sessionKeyPrefix+id, lockKeyPrefix+id)
}

func (s *RedisStore) Acquire(ctx context.Context, id string) (string, bool, error) {
	token, ok, err := s.redis.TryLock(ctx, lockKeyPrefix+id, s.lockTTL)
	if err != nil {
		return "", false, fmt.Errorf("acquire session lock: %w", err)
	}
	return token, ok, nil
}

// Release is a no-op when the lock already expired and another request took
// it; only the holder's token can delete the key.
func (s *RedisStore) Release(ctx context.Context, id, token string) error {
	if _, err := s.redis.Unlock(ctx, lockKeyPrefix+id, token); err != nil {
		return fmt.Errorf("release session lock: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}

// NewSessionStore picks Redis when enabled, otherwise the in-memory store.
func NewSessionStore(cfg *config.Config) (models.SessionRepository, *database.RedisClient, error) {
	ttl := config.GetDuration(cfg.Session.TTL)
	if !cfg.Redis.Enabled {
		return NewMemoryStore(ttl), nil, nil
	}

	client, err := database.NewRedis(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	lockTTL := config.GetDuration(cfg.LLM.Timeout) + 30*time.Second
	return NewRedisStore(client, ttl, lockTTL), client, nil
}

// sessionID returns the id from the cookie, issuing a new one when absent.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.Session.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(config.GetDuration(s.config.Session.TTL).Seconds()),
	})
	return id
}

// loadSession returns the stored session or a fresh one for id.
func (s *Server) loadSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.sessions.Load(ctx, id)
	if errors.Is(err, models.ErrSessionNotFound) {
		return models.NewSession(id, config.GetDuration(s.config.Session.TTL)), nil
	}
	return sess, err
}
