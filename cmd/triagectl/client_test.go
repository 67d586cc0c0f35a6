package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/complaint"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/memory"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

func newTestClient(t *testing.T, blobs conversation.Persister) (*client, *bytes.Buffer) {
	t.Helper()
	store := conversation.NewStore(conversation.Key("tester"), blobs, nil)
	store.Restore(context.Background())
	var out bytes.Buffer
	r := triage.New(triage.Config{
		Store:        store,
		Analyzer:     analysis.NewMockAnalyzer(),
		Materializer: complaint.Materializer{FormURL: "http://localhost:3000/user-dashboard/complaint"},
		Notifier:     toastNotifier{out: &out},
	})
	return newClient(r, &out), &out
}

func TestClientComplaintSession(t *testing.T) {
	c, out := newTestClient(t, memory.NewInMemoryStore())
	input := strings.Join([]string{
		"I think I got a phishing email",
		"/complaint",
		"/submit",
		"/quit",
	}, "\n")

	if err := c.run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Type /complaint to file a complaint.",
		"Type /submit to review and submit.",
		"http://localhost:3000/user-dashboard/complaint?",
		"title=Suspicious+Email",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestClientReportsUnavailableAction(t *testing.T) {
	c, out := newTestClient(t, memory.NewInMemoryStore())
	if err := c.run(context.Background(), strings.NewReader("/submit\n/bogus\n")); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "not available for the last reply") {
		t.Fatalf("output missing affordance error:\n%s", got)
	}
	if !strings.Contains(got, "unknown command /bogus") {
		t.Fatalf("output missing unknown command error:\n%s", got)
	}
}

func TestClientRestoresFromSQLite(t *testing.T) {
	ctx := context.Background()
	blobs, err := memory.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer blobs.Close()

	c, _ := newTestClient(t, blobs)
	if _, err := c.handle(ctx, "got a weird sms from my bank"); err != nil {
		t.Fatalf("handle() error = %v", err)
	}

	restored, out := newTestClient(t, blobs)
	restored.printHistory()
	if !strings.Contains(out.String(), "you: got a weird sms from my bank") {
		t.Fatalf("restored history missing user turn:\n%s", out.String())
	}
}

func TestClientAttach(t *testing.T) {
	c, out := newTestClient(t, memory.NewInMemoryStore())
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nfake"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := c.handle(context.Background(), "/attach "+path); err != nil {
		t.Fatalf("attach error = %v", err)
	}
	if _, err := c.handle(context.Background(), "what is this?"); err != nil {
		t.Fatalf("send error = %v", err)
	}
	if !strings.Contains(out.String(), "Attached shot.png (image/png).") {
		t.Fatalf("output = %s", out.String())
	}
	snap := c.router.Snapshot()
	if len(snap.Turns) != 2 || snap.Turns[0].AttachmentRef == "" {
		t.Fatalf("turns = %+v", snap.Turns)
	}

	if _, err := c.handle(context.Background(), "/attach "+filepath.Join(t.TempDir(), "missing.png")); err != nil {
		t.Fatalf("failed attach should be reported as a turn, got %v", err)
	}
	if n := len(c.router.Snapshot().Turns); n != 3 {
		t.Fatalf("turns after failed attach = %d, want 3", n)
	}
	if got := out.String(); !strings.Contains(got, "notice:") || !strings.Contains(got, "The file could not be read.") {
		t.Fatalf("failed attach should print a notice:\n%s", got)
	}
}
