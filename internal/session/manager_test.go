package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager(timeout time.Duration, blobs *memory.InMemoryStore) *Manager {
	return NewManager(timeout, Dependencies{
		Persister: blobs,
		Analyzer:  analysis.NewMockAnalyzer(),
	})
}

func TestManagerCreateGetEnd(t *testing.T) {
	m := newTestManager(time.Minute, memory.NewInMemoryStore())
	s, created := m.Create(context.Background(), "u1", "tok")
	if s.ID == "" || !created {
		t.Fatalf("Create() = %+v, created=%v", s, created)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Owner != "u1" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, err := m.Router(s.ID); !errors.Is(err, ErrEnded) {
		t.Fatalf("Router() after end error = %v, want ErrEnded", err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerReusesActiveSessionPerOwner(t *testing.T) {
	m := newTestManager(time.Minute, memory.NewInMemoryStore())
	first, _ := m.Create(context.Background(), "u1", "tok")
	second, created := m.Create(context.Background(), "u1", "tok2")
	if created || second.ID != first.ID {
		t.Fatalf("second Create() = %+v created=%v, want reuse of %s", second, created, first.ID)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}
}

func TestManagerRestoresConversationAcrossSessions(t *testing.T) {
	blobs := memory.NewInMemoryStore()
	m := newTestManager(time.Minute, blobs)
	ctx := context.Background()

	s, _ := m.Create(ctx, "u1", "")
	router, err := m.Router(s.ID)
	if err != nil {
		t.Fatalf("Router() error = %v", err)
	}
	if _, err := router.Send(ctx, "I got a phishing email", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := m.End(s.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	next, created := m.Create(ctx, "u1", "")
	if !created || next.ID == s.ID {
		t.Fatalf("Create() after end = %+v created=%v", next, created)
	}
	router, err = m.Router(next.ID)
	if err != nil {
		t.Fatalf("Router() error = %v", err)
	}
	snap := router.Snapshot()
	if len(snap.Turns) != 2 {
		t.Fatalf("restored turns = %d, want 2", len(snap.Turns))
	}
	if snap.Turns[1].Intent != conversation.IntentAnalyzeThreat {
		t.Fatalf("restored reply intent = %q", snap.Turns[1].Intent)
	}
}

func TestManagerScopeEndsWithSession(t *testing.T) {
	m := newTestManager(time.Minute, memory.NewInMemoryStore())
	s, _ := m.Create(context.Background(), "u1", "")

	ctx, cancel, err := m.Scope(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
	defer cancel()

	if _, err := m.End(s.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("scoped context not cancelled after End")
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := newTestManager(30*time.Millisecond, memory.NewInMemoryStore())
	s, _ := m.Create(context.Background(), "u1", "")

	expired := make(chan string, 1)
	m.SetExpireHook(func(s *Session) { expired <- s.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != s.ID {
			t.Fatalf("expired %q, want %q", id, s.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session was not expired")
	}
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
}

func TestManagerTouchKeepsSessionAlive(t *testing.T) {
	m := newTestManager(time.Minute, memory.NewInMemoryStore())
	s, _ := m.Create(context.Background(), "u1", "")
	ageSession(m, s.ID, 2*time.Minute)

	if err := m.Touch(s.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	m.expireInactive()
	if got, _ := m.Get(s.ID); got.Status != StatusActive {
		t.Fatalf("touched session status = %q, want active", got.Status)
	}

	ageSession(m, s.ID, 2*time.Minute)
	m.expireInactive()
	if got, _ := m.Get(s.ID); got.Status != StatusEnded {
		t.Fatalf("idle session status = %q, want ended", got.Status)
	}
	if err := m.Touch(s.ID); !errors.Is(err, ErrEnded) {
		t.Fatalf("Touch() after expiry error = %v, want ErrEnded", err)
	}
}

func TestManagerPurgesEndedSessionsAfterRetention(t *testing.T) {
	m := newTestManager(time.Minute, memory.NewInMemoryStore())
	m.SetEndedRetention(time.Hour)
	s, _ := m.Create(context.Background(), "u1", "")
	if _, err := m.End(s.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	ageSession(m, s.ID, 30*time.Minute)
	m.expireInactive()
	if _, err := m.Get(s.ID); err != nil {
		t.Fatalf("Get() within retention error = %v", err)
	}

	ageSession(m, s.ID, 2*time.Hour)
	m.expireInactive()
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after retention error = %v, want ErrNotFound", err)
	}
}

type blockingAnalyzer struct{}

func (blockingAnalyzer) Analyze(ctx context.Context, _ analysis.Request) (analysis.Reply, error) {
	<-ctx.Done()
	return analysis.Reply{}, ctx.Err()
}

func TestManagerKeepsSessionWithPendingReply(t *testing.T) {
	m := NewManager(time.Minute, Dependencies{
		Persister: memory.NewInMemoryStore(),
		Analyzer:  blockingAnalyzer{},
	})
	s, _ := m.Create(context.Background(), "u1", "")
	r, err := m.Router(s.ID)
	if err != nil {
		t.Fatalf("Router() error = %v", err)
	}
	ctx, cancel, err := m.Scope(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
	defer cancel()
	done, err := r.SendAsync(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("SendAsync() error = %v", err)
	}

	ageSession(m, s.ID, 2*time.Minute)
	m.expireInactive()
	if got, _ := m.Get(s.ID); got.Status != StatusActive {
		t.Fatalf("session with a pending reply status = %q, want active", got.Status)
	}

	if _, err := m.End(s.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if c := <-done; c.Err == nil {
		t.Fatalf("pending reply should be discarded when the session ends")
	}
}

func ageSession(m *Manager, id string, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id].sess.LastActivityAt = time.Now().UTC().Add(-by)
}
