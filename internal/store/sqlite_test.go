package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/avdeev/takeover/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

func TestTouchSessionCreatesAndUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.TouchSession(ctx, "s1", "recruiter at Acme"); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}

	sess, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess == nil {
		t.Fatal("session not created")
	}
	if sess.DeclaredContext != "recruiter at Acme" {
		t.Errorf("declared context = %q", sess.DeclaredContext)
	}
	if sess.IsLive {
		t.Error("new session should not be live")
	}

	// Empty declared context must not clobber the stored one.
	if err := s.TouchSession(ctx, "s1", ""); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	sess, _ = s.GetSession(ctx, "s1")
	if sess.DeclaredContext != "recruiter at Acme" {
		t.Errorf("empty touch clobbered declared context: %q", sess.DeclaredContext)
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil for missing session, got %+v", sess)
	}
}

func TestAppendMessageAssignsSequentialSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		msg, err := s.AppendMessage(ctx, "s1", domain.RoleVisitor, fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("AppendMessage %d failed: %v", i, err)
		}
		if msg.Seq != int64(i) {
			t.Errorf("message %d got seq %d", i, msg.Seq)
		}
		if msg.ID == "" {
			t.Error("message id not assigned")
		}
	}

	// Independent sessions have independent counters.
	msg, err := s.AppendMessage(ctx, "s2", domain.RoleVisitor, "hello")
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if msg.Seq != 1 {
		t.Errorf("new session should start at seq 1, got %d", msg.Seq)
	}
}

func TestAppendMessageRejectsUnknownRole(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AppendMessage(context.Background(), "s1", domain.Role("ghost"), "boo"); err == nil {
		t.Fatal("expected an error for unknown role")
	}
}

func TestAppendMessageConcurrentKeepsOrderGapless(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const writers = 8

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := s.AppendMessage(ctx, "s1", domain.RoleVisitor, fmt.Sprintf("msg %d", n)); err != nil {
				t.Errorf("concurrent append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	msgs, err := s.Messages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != writers {
		t.Fatalf("expected %d messages, got %d", writers, len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != int64(i+1) {
			t.Errorf("seq gap: position %d has seq %d", i, m.Seq)
		}
	}
}

func TestMessagesAfterSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := s.AppendMessage(ctx, "s1", domain.RoleVisitor, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	msgs, err := s.Messages(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after seq 2, got %d", len(msgs))
	}
	if msgs[0].Seq != 3 || msgs[1].Seq != 4 {
		t.Errorf("wrong messages returned: %+v", msgs)
	}
}

func TestSetLiveStampsAndClearsJoinedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetLive(ctx, "s1", true); err != nil {
		t.Fatalf("SetLive(true) failed: %v", err)
	}
	state, err := s.GetLive(ctx, "s1")
	if err != nil {
		t.Fatalf("GetLive failed: %v", err)
	}
	if !state.IsLive {
		t.Fatal("session should be live")
	}
	if state.OperatorJoinedAt == nil {
		t.Fatal("live session must carry operator_joined_at")
	}
	firstJoin := *state.OperatorJoinedAt

	// Re-asserting live keeps the original join timestamp.
	time.Sleep(1100 * time.Millisecond)
	if err := s.SetLive(ctx, "s1", true); err != nil {
		t.Fatalf("SetLive(true) again failed: %v", err)
	}
	state, _ = s.GetLive(ctx, "s1")
	if state.OperatorJoinedAt == nil || !state.OperatorJoinedAt.Equal(firstJoin) {
		t.Errorf("re-join overwrote operator_joined_at: was %v, now %v", firstJoin, state.OperatorJoinedAt)
	}

	// Leaving clears the timestamp with the flag.
	if err := s.SetLive(ctx, "s1", false); err != nil {
		t.Fatalf("SetLive(false) failed: %v", err)
	}
	state, _ = s.GetLive(ctx, "s1")
	if state.IsLive {
		t.Error("session should not be live")
	}
	if state.OperatorJoinedAt != nil {
		t.Error("not-live session must not carry operator_joined_at")
	}
}

func TestGetLiveMissingSessionDefaultsNotLive(t *testing.T) {
	s := newTestStore(t)

	state, err := s.GetLive(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetLive failed: %v", err)
	}
	if state.IsLive {
		t.Error("missing session should read as not live")
	}
}

func TestListSessionsOrderAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendMessage(ctx, "older", domain.RoleVisitor, "hi"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if _, err := s.AppendMessage(ctx, "newer", domain.RoleVisitor, "hi"); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	infos, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	if infos[0].SessionID != "newer" {
		t.Errorf("most recently active session should sort first, got %q", infos[0].SessionID)
	}
	if infos[0].MessageCount != 3 || infos[1].MessageCount != 1 {
		t.Errorf("wrong message counts: %d, %d", infos[0].MessageCount, infos[1].MessageCount)
	}
}

func TestReleaseIdleSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetLive(ctx, "stale", true); err != nil {
		t.Fatalf("SetLive failed: %v", err)
	}
	time.Sleep(2100 * time.Millisecond)
	if err := s.SetLive(ctx, "fresh", true); err != nil {
		t.Fatalf("SetLive failed: %v", err)
	}

	released, err := s.ReleaseIdleSessions(ctx, time.Second)
	if err != nil {
		t.Fatalf("ReleaseIdleSessions failed: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released session, got %d", released)
	}

	state, _ := s.GetLive(ctx, "stale")
	if state.IsLive {
		t.Error("stale session should have been released")
	}
	state, _ = s.GetLive(ctx, "fresh")
	if !state.IsLive {
		t.Error("fresh session should still be live")
	}
}

func TestSubscribeMessagesReceivesOwnAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, cancel := s.SubscribeMessages("s1")
	defer cancel()

	want, err := s.AppendMessage(ctx, "s1", domain.RoleOperator, "hello there")
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.ID != want.ID || got.Content != "hello there" {
			t.Errorf("subscriber got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the append")
	}
}

func TestSubscribeLiveReceivesFlips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, cancel := s.SubscribeLive("s1")
	defer cancel()

	if err := s.SetLive(ctx, "s1", true); err != nil {
		t.Fatalf("SetLive failed: %v", err)
	}

	select {
	case state := <-ch:
		if !state.IsLive {
			t.Errorf("expected live state, got %+v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live subscriber did not receive the flip")
	}
}

func TestSubscriptionIsolatedPerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, cancel := s.SubscribeMessages("s1")
	defer cancel()

	if _, err := s.AppendMessage(ctx, "s2", domain.RoleVisitor, "other session"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	select {
	case msg := <-ch:
		t.Fatalf("subscriber for s1 received s2's message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMessageObserverSeesEveryAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []domain.Message
	s.SetMessageObserver(func(msg domain.Message) {
		mu.Lock()
		seen = append(seen, msg)
		mu.Unlock()
	})

	if _, err := s.AppendMessage(ctx, "s1", domain.RoleVisitor, "one"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if _, err := s.AppendMessage(ctx, "s2", domain.RoleAI, "two"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("observer saw %d messages, want 2", len(seen))
	}
	if seen[0].Content != "one" || seen[1].Content != "two" {
		t.Errorf("observer saw wrong messages: %+v", seen)
	}
}
