package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/policy"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/protocol"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sess, router, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected", s.sessions.ActiveCount())

	ctx, cancel, err := s.sessions.Scope(context.Background(), sess.ID)
	if err != nil {
		return
	}
	defer cancel()
	// Ending the session unblocks the reader.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	outbound := make(chan any, 256)
	enqueue := func(msg any) {
		t, _ := protocol.TypeOf(msg)
		select {
		case outbound <- msg:
			s.metrics.ObserveWSMessage("outbound", string(t))
		default:
			// Keep websocket writes single-threaded; drop if the queue is saturated.
			s.metrics.ObserveWSMessage("outbound_dropped", string(t))
		}
	}

	unsubscribe := router.Subscribe(func(ev triage.Event) {
		if msg, ok := protocol.FromEvent(sess.ID, ev); ok {
			enqueue(msg)
		}
	})
	defer unsubscribe()
	enqueue(protocol.Snapshot{Type: protocol.TypeSnapshot, SessionID: sess.ID, Snapshot: router.Snapshot()})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Sends are admitted inline so a second send while a reply is pending is rejected
	// as busy; the classifier reply is awaited in the background.
	var pending sync.WaitGroup
	await := func(done <-chan triage.Completion) {
		pending.Add(1)
		go func() {
			defer pending.Done()
			<-done
			_ = s.sessions.Touch(sess.ID)
		}()
	}

	conn.SetReadLimit(s.cfg.MaxAttachmentBytes*2 + multipartOverhead)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := protocol.TypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		if err := s.sessions.Touch(sess.ID); err != nil {
			break
		}
		done, err := s.dispatch(ctx, router, parsed)
		if err != nil {
			enqueue(errorEvent(sess.ID, err))
			continue
		}
		if done != nil {
			await(done)
		}
	}

	// Closing the connection tears the page down: a pending reply is discarded.
	cancel()
	pending.Wait()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected", s.sessions.ActiveCount())
}

// dispatch applies one client command. Commands that call the classifier return the
// channel their completion arrives on.
func (s *Server) dispatch(ctx context.Context, router *triage.Router, msg any) (<-chan triage.Completion, error) {
	switch m := msg.(type) {
	case protocol.ClientSend:
		att, err := m.Decode()
		if err != nil {
			_, err = router.ReportAttachmentFailure(ctx, analysis.NewAttachmentError("The attachment could not be read.", err))
			return nil, err
		}
		if att != nil {
			decision := policy.CheckAttachment(att.ContentType, int64(len(att.Data)), s.cfg.MaxAttachmentBytes)
			if !decision.Allowed {
				_, err := router.ReportAttachmentFailure(ctx, analysis.NewAttachmentError(decision.Reason, nil))
				return nil, err
			}
		}
		return router.SendAsync(ctx, m.Text, att)
	case protocol.ClientControl:
		switch m.Action {
		case protocol.ActionStartComplaint:
			return router.StartComplaintAsync(ctx)
		case protocol.ActionProceed:
			_, err := router.Proceed(ctx)
			return nil, err
		case protocol.ActionResume:
			router.Resume()
			return nil, nil
		case protocol.ActionNewChat:
			router.NewChat(ctx)
			return nil, nil
		}
	}
	s.logger.Debug("ignored websocket message", zap.Any("message", msg))
	return nil, nil
}

func errorEvent(sessionID string, err error) protocol.ErrorEvent {
	code := "internal"
	switch {
	case errors.Is(err, triage.ErrBusy):
		code = "busy"
	case errors.Is(err, triage.ErrEmptyInput):
		code = "empty_input"
	case errors.Is(err, triage.ErrHandedOff):
		code = "handed_off"
	case errors.Is(err, triage.ErrAffordanceUnavailable):
		code = "action_unavailable"
	case errors.Is(err, triage.ErrDiscarded):
		code = "discarded"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    "router",
		Retryable: code == "busy",
		Detail:    err.Error(),
	}
}
