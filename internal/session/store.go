// Package session keeps bounded multi-turn conversation state in memory.
package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/models"
)

// Store owns every ConversationSession. All methods are safe for concurrent use and
// return snapshots; callers never see the store's own session values.
type Store struct {
	maxTurns      int
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*models.ConversationSession

	started  bool
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for sweep output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store. Zero config fields take the package defaults.
func New(cfg config.SessionConfig, opts ...Option) *Store {
	def := config.Default().Session
	s := &Store{
		maxTurns:      def.MaxTurns,
		ttl:           def.TTL,
		sweepInterval: def.SweepInterval,
		now:           time.Now,
		logger:        zap.NewNop(),
		sessions:      make(map[string]*models.ConversationSession),
		done:          make(chan struct{}),
	}
	if cfg.MaxTurns > 0 {
		s.maxTurns = cfg.MaxTurns
	}
	if cfg.TTL > 0 {
		s.ttl = cfg.TTL
	}
	if cfg.SweepInterval > 0 {
		s.sweepInterval = cfg.SweepInterval
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the session with sessionID, creating it when missing.
// An empty sessionID always creates a new session with a generated ID.
func (s *Store) GetOrCreate(sessionID, userID string) *models.ConversationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(sessionID, userID).Clone()
}

func (s *Store) getOrCreateLocked(sessionID, userID string) *models.ConversationSession {
	if sessionID != "" {
		if sess, ok := s.sessions[sessionID]; ok {
			if sess.UserID == "" {
				sess.UserID = userID
			}
			return sess
		}
	} else {
		sessionID = uuid.NewString()
	}
	now := s.now()
	sess := &models.ConversationSession{
		SessionID:      sessionID,
		UserID:         userID,
		DominantIntent: models.QuestionUnknown,
		CreatedAt:      now,
		LastActivity:   now,
	}
	s.sessions[sessionID] = sess
	return sess
}

// AppendTurn records turn in the session, creating the session when missing, and
// returns a snapshot of the updated session. The turn list is trimmed from the
// oldest end to the configured cap.
func (s *Store) AppendTurn(sessionID string, turn models.ConversationTurn) *models.ConversationSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(sessionID, "")
	now := s.now()
	if turn.TurnID == "" {
		turn.TurnID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}

	sess.Turns = append(sess.Turns, turn)
	if over := len(sess.Turns) - s.maxTurns; over > 0 {
		sess.Turns = append([]models.ConversationTurn(nil), sess.Turns[over:]...)
	}
	sess.LastActivity = now
	if t := turn.Classification.Type; t.Known() {
		sess.DominantIntent = t
	}

	// Merge extracted state, last write wins
	for _, e := range turn.Entities {
		if sess.ActiveContext.Entities == nil {
			sess.ActiveContext.Entities = make(map[string]models.Entity)
		}
		sess.ActiveContext.Entities[strings.ToLower(e.Text)] = e
	}
	for k, v := range turn.Parameters {
		if sess.ActiveContext.Parameters == nil {
			sess.ActiveContext.Parameters = make(map[string]string)
		}
		sess.ActiveContext.Parameters[k] = v
	}
	return sess.Clone()
}

// Get returns a snapshot of the session, or false when it does not exist.
func (s *Store) Get(sessionID string) (*models.ConversationSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// RecentContext derives a QueryContext from the session's last turn and active context.
// It returns nil when the session does not exist.
func (s *Store) RecentContext(sessionID string) *models.QueryContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	qctx := &models.QueryContext{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		PriorType: models.QuestionUnknown,
	}
	if last, ok := sess.LastTurn(); ok {
		qctx.PriorType = last.Classification.Type
		qctx.PriorDomains = append([]models.BusinessDomain(nil), last.Domains...)
	}
	keys := make([]string, 0, len(sess.ActiveContext.Entities))
	for k := range sess.ActiveContext.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		qctx.Entities = append(qctx.Entities, sess.ActiveContext.Entities[k])
	}
	if len(sess.ActiveContext.Parameters) > 0 {
		qctx.Parameters = make(map[string]string, len(sess.ActiveContext.Parameters))
		for k, v := range sess.ActiveContext.Parameters {
			qctx.Parameters[k] = v
		}
	}
	return qctx
}

// Delete removes a session. It reports whether the session existed.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Start runs the background sweep until ctx is cancelled or Close is called.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Store) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired sessions removed", zap.Int("count", n), zap.Int("remaining", s.Len()))
			}
		}
	}
}

// Close stops the sweep and drops every session.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	s.mu.Lock()
	s.sessions = make(map[string]*models.ConversationSession)
	s.mu.Unlock()
	return nil
}
