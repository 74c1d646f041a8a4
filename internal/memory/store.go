package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"litchat/internal/models"
	"litchat/internal/util"
)

// Summarizer condenses a message prefix into a short running summary. The
// previous summary is passed in so the result stays cumulative.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, messages []models.Message) (string, error)
}

// Archiver receives a session snapshot when the store evicts it, so the
// transcript outlives process memory. Saves are best effort.
type Archiver interface {
	SaveSession(ctx context.Context, s models.Session) error
}

type Options struct {
	TokenBudget int
	IdleTimeout time.Duration
	// Messages kept verbatim even when summarization is pending; the
	// newest exchanges always reach the model untouched.
	KeepRecent int
}

func (o Options) normalized() Options {
	if o.TokenBudget <= 0 {
		o.TokenBudget = 3072
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = time.Hour
	}
	if o.KeepRecent <= 0 {
		o.KeepRecent = 4
	}
	return o
}

type session struct {
	mu          sync.Mutex
	data        models.Session
	summary     string
	summarizing bool
}

// Store holds conversation sessions in process memory. Reads copy under the
// session lock; only mutation paths hold it for longer than a field read.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*session
	opts       Options
	summarizer Summarizer
	archive    Archiver
	log        *zap.Logger
	now        func() time.Time
}

func NewStore(summarizer Summarizer, opts Options, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		sessions:   make(map[string]*session),
		opts:       opts.normalized(),
		summarizer: summarizer,
		log:        log,
		now:        time.Now,
	}
}

// SetArchiver installs the eviction sink. Call before the sweeper starts.
func (s *Store) SetArchiver(a Archiver) {
	s.archive = a
}

// Create registers a fresh session and returns its id.
func (s *Store) Create(paperScope []string) string {
	id := uuid.NewString()
	now := s.now()
	sess := &session{data: models.Session{
		SessionID:  id,
		CreatedAt:  now,
		LastActive: now,
		Messages:   []models.Message{},
		PaperScope: append([]string(nil), paperScope...),
	}}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return id
}

// Get returns a copy of the session. A missing id is reported with ok=false,
// not an error; absence is an expected state after eviction.
func (s *Store) Get(sessionID string) (models.Session, bool) {
	sess := s.lookup(sessionID)
	if sess == nil {
		return models.Session{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return copySession(sess.data), true
}

// Append adds one message, creating the session if the id is unknown.
func (s *Store) Append(ctx context.Context, sessionID string, msg models.Message) {
	s.AppendAll(ctx, sessionID, msg)
}

// AppendAll adds messages atomically: either every message lands in the
// transcript or none does. Streaming commits a user/assistant pair through
// this so a cancelled stream never leaves a dangling user turn.
func (s *Store) AppendAll(ctx context.Context, sessionID string, msgs ...models.Message) {
	if len(msgs) == 0 {
		return
	}
	sess := s.ensure(sessionID)
	sess.mu.Lock()
	now := s.now()
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		sess.data.Messages = append(sess.data.Messages, m)
		sess.data.TokensUsed += util.EstimateTokens(m.Content)
	}
	sess.data.LastActive = now
	start := s.startSummarizeLocked(sess)
	sess.mu.Unlock()
	if start != nil {
		go s.runSummarize(ctx, sessionID, sess, start)
	}
}

// SetPaperScope replaces the session's paper scope, creating the session
// when needed.
func (s *Store) SetPaperScope(sessionID string, paperIDs []string) {
	sess := s.ensure(sessionID)
	sess.mu.Lock()
	sess.data.PaperScope = append([]string(nil), paperIDs...)
	sess.data.LastActive = s.now()
	sess.mu.Unlock()
}

// Touch bumps LastActive without mutating the transcript.
func (s *Store) Touch(sessionID string) {
	sess := s.lookup(sessionID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.data.LastActive = s.now()
	sess.mu.Unlock()
}

// Window returns the model-facing view of a session: the running summary as
// a leading system message (when present) plus the newest messages that fit
// tokenBudget. A non-positive budget uses the store's configured default.
// Messages are never truncated mid-content; a message that does not fit is
// dropped whole along with everything older.
func (s *Store) Window(sessionID string, tokenBudget int) ([]models.Message, bool) {
	sess := s.lookup(sessionID)
	if sess == nil {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	budget := tokenBudget
	if budget <= 0 {
		budget = s.opts.TokenBudget
	}
	out := []models.Message{}
	if sess.summary != "" {
		sys := models.Message{Role: models.RoleSystem, Content: "Conversation so far: " + sess.summary}
		budget -= util.EstimateTokens(sys.Content)
		out = append(out, sys)
	}

	msgs := sess.data.Messages
	keep := len(msgs)
	used := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		t := util.EstimateTokens(msgs[i].Content)
		if used+t > budget {
			break
		}
		used += t
		keep = i
	}
	for _, m := range msgs[keep:] {
		out = append(out, copyMessage(m))
	}
	return out, true
}

// EvictIdle drops sessions whose LastActive is older than the idle timeout
// and reports how many were removed.
func (s *Store) EvictIdle() int {
	cutoff := s.now().Add(-s.opts.IdleTimeout)
	var archived []models.Session
	evicted := 0
	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.data.LastActive.Before(cutoff)
		if idle && s.archive != nil {
			archived = append(archived, copySession(sess.data))
		}
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			evicted++
		}
	}
	s.mu.Unlock()

	for _, snap := range archived {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.archive.SaveSession(ctx, snap); err != nil {
			s.log.Warn("session archive failed",
				zap.String("session_id", snap.SessionID),
				zap.Error(err))
		}
		cancel()
	}
	return evicted
}

// RunSweeper evicts idle sessions on a ticker until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				s.log.Info("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) lookup(sessionID string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

func (s *Store) ensure(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}
	now := s.now()
	sess := &session{data: models.Session{
		SessionID:  sessionID,
		CreatedAt:  now,
		LastActive: now,
		Messages:   []models.Message{},
	}}
	s.sessions[sessionID] = sess
	return sess
}

// startSummarizeLocked decides whether the transcript has outgrown the
// budget and, if so, detaches the oldest prefix for summarization. At most
// one summarization per session is in flight; a second overflow waits for
// the current one to land. Caller holds sess.mu.
func (s *Store) startSummarizeLocked(sess *session) []models.Message {
	if s.summarizer == nil || sess.summarizing {
		return nil
	}
	msgs := sess.data.Messages
	if len(msgs) <= s.opts.KeepRecent {
		return nil
	}
	total := 0
	for _, m := range msgs {
		total += util.EstimateTokens(m.Content)
	}
	if total <= s.opts.TokenBudget {
		return nil
	}
	cut := len(msgs) - s.opts.KeepRecent
	prefix := make([]models.Message, cut)
	for i := 0; i < cut; i++ {
		prefix[i] = copyMessage(msgs[i])
	}
	sess.summarizing = true
	return prefix
}

func (s *Store) runSummarize(ctx context.Context, sessionID string, sess *session, prefix []models.Message) {
	sess.mu.Lock()
	previous := sess.summary
	sess.mu.Unlock()

	summary, err := s.summarizer.Summarize(context.WithoutCancel(ctx), previous, prefix)

	sess.mu.Lock()
	sess.summarizing = false
	if err != nil {
		// Keep the full transcript; the window still serves the newest
		// suffix, so a failed summarization only costs older context.
		sess.mu.Unlock()
		s.log.Warn("session summarization failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	sess.summary = summary
	if len(prefix) <= len(sess.data.Messages) {
		sess.data.Messages = append([]models.Message{}, sess.data.Messages[len(prefix):]...)
	}
	sess.mu.Unlock()
	s.log.Debug("session prefix summarized",
		zap.String("session_id", sessionID),
		zap.Int("messages", len(prefix)))
}

func copySession(in models.Session) models.Session {
	out := in
	out.Messages = make([]models.Message, len(in.Messages))
	for i, m := range in.Messages {
		out.Messages[i] = copyMessage(m)
	}
	out.PaperScope = append([]string(nil), in.PaperScope...)
	return out
}

func copyMessage(in models.Message) models.Message {
	out := in
	out.Citations = append([]models.Citation(nil), in.Citations...)
	return out
}
