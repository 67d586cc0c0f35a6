package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/history"
)

func TestHTTPClientSendsMultipartContract(t *testing.T) {
	var (
		gotAuth    string
		gotText    string
		gotHistory []history.Entry
		gotImage   []byte
		gotCT      string
		gotName    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotText = r.FormValue("text_input")
		_ = json.Unmarshal([]byte(r.FormValue("history")), &gotHistory)
		f, hdr, err := r.FormFile("image")
		if err == nil {
			gotImage, _ = io.ReadAll(f)
			gotCT = hdr.Header.Get("Content-Type")
			gotName = hdr.Filename
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"intent":"general_question","answer":"hi"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	reply, err := c.Analyze(context.Background(), Request{
		Text: "what is this?",
		History: []history.Entry{
			{Role: conversation.RoleUser, Content: "hello"},
			{Role: conversation.RoleAssistant, Content: `{"intent":"general_question","answer":"hey"}`},
		},
		Attachment: &conversation.Attachment{Filename: "shot.png", ContentType: "image/png", Data: []byte{0x89, 'P'}},
		Token:      "tok-123",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if reply.Intent != conversation.IntentGeneralQuestion || reply.Text != "hi" {
		t.Fatalf("reply = %+v", reply)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotText != "what is this?" {
		t.Fatalf("text_input = %q", gotText)
	}
	if len(gotHistory) != 2 || gotHistory[1].Role != conversation.RoleAssistant {
		t.Fatalf("history = %+v", gotHistory)
	}
	if string(gotImage) != string([]byte{0x89, 'P'}) || gotCT != "image/png" || gotName != "shot.png" {
		t.Fatalf("image part = %v %q %q", gotImage, gotCT, gotName)
	}
}

func TestHTTPClientEmptyHistoryAndNoImage(t *testing.T) {
	var gotHistory string
	var hasImage bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		gotHistory = r.FormValue("history")
		_, _, err := r.FormFile("image")
		hasImage = err == nil
		_, _ = w.Write([]byte(`{"intent":"general_question","answer":"hi"}`))
	}))
	defer srv.Close()

	if _, err := NewHTTPClient(srv.URL, time.Second).Analyze(context.Background(), Request{Text: "hi"}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if gotHistory != "[]" {
		t.Fatalf("history = %q, want []", gotHistory)
	}
	if hasImage {
		t.Fatalf("image part should be absent")
	}
}

func TestHTTPClientErrorKinds(t *testing.T) {
	cases := []struct {
		name       string
		handler    http.HandlerFunc
		wantKind   Kind
		wantStatus int
		wantDetail string
	}{
		{
			name: "server error with detail",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`{"detail":"Mistral AI request failed"}`))
			},
			wantKind:   KindServer,
			wantStatus: http.StatusBadGateway,
			wantDetail: "Mistral AI request failed",
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantKind:   KindServer,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>oops</html>`))
			},
			wantKind: KindMalformed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, time.Second).Analyze(context.Background(), Request{Text: "x"})
			var aerr *Error
			if !errors.As(err, &aerr) {
				t.Fatalf("Analyze() error = %v, want *Error", err)
			}
			if aerr.Kind != tc.wantKind || aerr.Status != tc.wantStatus {
				t.Fatalf("error = %+v, want kind=%q status=%d", aerr, tc.wantKind, tc.wantStatus)
			}
			if tc.wantDetail != "" && aerr.UserMessage() != tc.wantDetail {
				t.Fatalf("UserMessage() = %q, want %q", aerr.UserMessage(), tc.wantDetail)
			}
			if aerr.UserMessage() == "" {
				t.Fatalf("UserMessage() should never be empty")
			}
		})
	}
}

func TestHTTPClientTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPClient(srv.URL, 50*time.Millisecond).Analyze(context.Background(), Request{Text: "x"})
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Kind != KindTransport {
		t.Fatalf("Analyze() error = %v, want transport error", err)
	}
	if !aerr.Retryable() {
		t.Fatalf("timeouts should be reported as retryable")
	}
	if aerr.UserMessage() != "The analysis service took too long to respond." {
		t.Fatalf("UserMessage() = %q", aerr.UserMessage())
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, time.Second).Analyze(context.Background(), Request{Text: "x"})
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Kind != KindTransport {
		t.Fatalf("Analyze() error = %v, want transport error", err)
	}
}

func TestNewAnalyzerModes(t *testing.T) {
	a, err := NewAnalyzer(Config{})
	if err != nil || ModeOf(a) != "mock" {
		t.Fatalf("auto without url = %T, %v; want mock", a, err)
	}
	a, err = NewAnalyzer(Config{URL: "http://classifier.test"})
	if err != nil || ModeOf(a) != "http" {
		t.Fatalf("auto with url = %T, %v; want http", a, err)
	}
	if _, err := NewAnalyzer(Config{Mode: "http"}); err == nil {
		t.Fatalf("http mode without url should fail")
	}
	if _, err := NewAnalyzer(Config{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
