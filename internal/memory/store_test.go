package memory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"litchat/internal/models"
)

type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	notify  chan struct{}
	summary string
}

func (f *fakeSummarizer) Summarize(_ context.Context, previous string, msgs []models.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.notify != nil {
		f.notify <- struct{}{}
	}
	if f.summary != "" {
		return f.summary, nil
	}
	return "summary of " + previous, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestStoreAutoCreatesSession(t *testing.T) {
	s := NewStore(nil, Options{}, nil)
	s.Append(context.Background(), "sess-1", models.Message{Role: models.RoleUser, Content: "hi"})

	sess, ok := s.Get("sess-1")
	require.True(t, ok)
	require.Len(t, sess.Messages, 1)
	require.Equal(t, "hi", sess.Messages[0].Content)
}

func TestStoreGetMissingIsNotAnError(t *testing.T) {
	s := NewStore(nil, Options{}, nil)
	_, ok := s.Get("nope")
	require.False(t, ok)

	_, ok = s.Window("nope", 0)
	require.False(t, ok)
}

func TestStoreAppendAllIsAtomic(t *testing.T) {
	s := NewStore(nil, Options{}, nil)
	id := s.Create(nil)
	s.AppendAll(context.Background(), id,
		models.Message{Role: models.RoleUser, Content: "question"},
		models.Message{Role: models.RoleAssistant, Content: "answer"},
	)

	sess, ok := s.Get(id)
	require.True(t, ok)
	require.Len(t, sess.Messages, 2)
	require.Equal(t, models.RoleUser, sess.Messages[0].Role)
	require.Equal(t, models.RoleAssistant, sess.Messages[1].Role)
}

func TestWindowDropsOldestWholeMessages(t *testing.T) {
	// Each message is ~25 tokens; budget fits only the two newest.
	s := NewStore(nil, Options{TokenBudget: 60, KeepRecent: 100}, nil)
	id := s.Create(nil)
	for _, c := range []string{"first", "second", "third"} {
		s.Append(context.Background(), id, models.Message{
			Role:    models.RoleUser,
			Content: c + " " + strings.Repeat("x", 94),
		})
	}

	window, ok := s.Window(id, 0)
	require.True(t, ok)
	require.Len(t, window, 2)
	require.True(t, strings.HasPrefix(window[0].Content, "second"))
	require.True(t, strings.HasPrefix(window[1].Content, "third"))
}

func TestWindowPerCallBudgetOverridesDefault(t *testing.T) {
	// The configured budget fits everything; a tighter per-call budget
	// keeps only the newest message.
	s := NewStore(nil, Options{TokenBudget: 10000, KeepRecent: 100}, nil)
	id := s.Create(nil)
	for _, c := range []string{"first", "second", "third"} {
		s.Append(context.Background(), id, models.Message{
			Role:    models.RoleUser,
			Content: c + " " + strings.Repeat("x", 94),
		})
	}

	window, ok := s.Window(id, 30)
	require.True(t, ok)
	require.Len(t, window, 1)
	require.True(t, strings.HasPrefix(window[0].Content, "third"))

	// Zero falls back to the configured budget.
	window, ok = s.Window(id, 0)
	require.True(t, ok)
	require.Len(t, window, 3)
}

func TestSummarizationTrimsPrefixAndPrependsSummary(t *testing.T) {
	f := &fakeSummarizer{notify: make(chan struct{}, 1), summary: "earlier discussion recap"}
	s := NewStore(f, Options{TokenBudget: 40, KeepRecent: 2}, nil)
	id := s.Create(nil)
	for i := 0; i < 5; i++ {
		s.Append(context.Background(), id, models.Message{
			Role:    models.RoleUser,
			Content: strings.Repeat("w", 80),
		})
	}

	select {
	case <-f.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("summarizer was never invoked")
	}
	// Wait for the store to apply the result.
	require.Eventually(t, func() bool {
		sess, _ := s.Get(id)
		return len(sess.Messages) < 5
	}, 2*time.Second, 10*time.Millisecond)

	window, ok := s.Window(id, 0)
	require.True(t, ok)
	require.Equal(t, models.RoleSystem, window[0].Role)
	require.Contains(t, window[0].Content, "earlier discussion recap")
}

func TestAtMostOneSummarizationInFlight(t *testing.T) {
	f := &fakeSummarizer{block: make(chan struct{}), notify: make(chan struct{}, 2)}
	s := NewStore(f, Options{TokenBudget: 20, KeepRecent: 1}, nil)
	id := s.Create(nil)

	for i := 0; i < 6; i++ {
		s.Append(context.Background(), id, models.Message{
			Role:    models.RoleUser,
			Content: strings.Repeat("y", 60),
		})
	}
	require.Eventually(t, func() bool { return f.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	// Further overflow must not start a second run while one is blocked.
	s.Append(context.Background(), id, models.Message{Role: models.RoleUser, Content: strings.Repeat("z", 60)})
	require.Equal(t, 1, f.callCount())
	close(f.block)
	<-f.notify
}

func TestEvictIdle(t *testing.T) {
	s := NewStore(nil, Options{IdleTimeout: time.Hour}, nil)
	now := time.Now()
	s.now = func() time.Time { return now }
	stale := s.Create(nil)
	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	fresh := s.Create(nil)

	require.Equal(t, 1, s.EvictIdle())
	_, ok := s.Get(stale)
	require.False(t, ok)
	_, ok = s.Get(fresh)
	require.True(t, ok)
}

type recordingArchiver struct {
	mu    sync.Mutex
	saved []models.Session
}

func (a *recordingArchiver) SaveSession(_ context.Context, s models.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, s)
	return nil
}

func TestEvictIdleArchivesSession(t *testing.T) {
	arch := &recordingArchiver{}
	s := NewStore(nil, Options{IdleTimeout: time.Hour}, nil)
	s.SetArchiver(arch)
	now := time.Now()
	s.now = func() time.Time { return now }
	id := s.Create([]string{"arxiv:1706.03762"})
	s.Append(context.Background(), id, models.Message{Role: models.RoleUser, Content: "hello"})

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	require.Equal(t, 1, s.EvictIdle())

	arch.mu.Lock()
	defer arch.mu.Unlock()
	require.Len(t, arch.saved, 1)
	require.Equal(t, id, arch.saved[0].SessionID)
	require.Len(t, arch.saved[0].Messages, 1)
	require.Equal(t, []string{"arxiv:1706.03762"}, arch.saved[0].PaperScope)
}

func TestConcurrentAppends(t *testing.T) {
	s := NewStore(nil, Options{}, nil)
	id := s.Create(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(context.Background(), id, models.Message{Role: models.RoleUser, Content: "m"})
		}()
	}
	wg.Wait()
	sess, ok := s.Get(id)
	require.True(t, ok)
	require.Len(t, sess.Messages, 20)
}
