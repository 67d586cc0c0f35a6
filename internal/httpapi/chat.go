package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/complaint"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/policy"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

// multipartOverhead covers form fields sent alongside the attachment.
const multipartOverhead = 1 << 20

type sendRequest struct {
	Text string `json:"text"`
}

type failureView struct {
	Kind      analysis.Kind `json:"kind"`
	Message   string        `json:"message"`
	Retryable bool          `json:"retryable"`
}

type exchangeResponse struct {
	User       conversation.Turn `json:"user"`
	Reply      conversation.Turn `json:"reply"`
	Outcome    triage.Outcome    `json:"outcome"`
	Affordance triage.Affordance `json:"affordance"`
	Failure    *failureView      `json:"failure,omitempty"`
	Snapshot   triage.Snapshot   `json:"snapshot"`
}

// attachmentRejectedResponse hands the unsent text back so the client can restore its input.
type attachmentRejectedResponse struct {
	Text     string            `json:"text_input,omitempty"`
	Turn     conversation.Turn `json:"turn"`
	Failure  failureView       `json:"failure"`
	Snapshot triage.Snapshot   `json:"snapshot"`
}

type handoffResponse struct {
	TurnID string              `json:"turn_id"`
	Params map[string][]string `json:"params"`
	URL    string              `json:"url,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, router, ok := s.lookup(w, r)
	if !ok {
		return
	}

	text, att, rejection, err := s.readMessage(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if rejection != nil {
		turn, err := router.ReportAttachmentFailure(r.Context(), rejection)
		if err != nil {
			respondRouterError(w, err)
			return
		}
		respondJSON(w, http.StatusUnprocessableEntity, attachmentRejectedResponse{
			Text:     text,
			Turn:     turn,
			Failure:  failureView{Kind: rejection.Kind, Message: rejection.UserMessage()},
			Snapshot: router.Snapshot(),
		})
		return
	}

	ctx, cancel, err := s.sessions.Scope(r.Context(), sess.ID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	defer cancel()

	res, err := router.Send(ctx, text, att)
	if err != nil {
		respondRouterError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newExchangeResponse(res, router.Snapshot()))
}

func (s *Server) handleStartComplaint(w http.ResponseWriter, r *http.Request) {
	sess, router, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ctx, cancel, err := s.sessions.Scope(r.Context(), sess.ID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	defer cancel()

	res, err := router.StartComplaint(ctx)
	if err != nil {
		respondRouterError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newExchangeResponse(res, router.Snapshot()))
}

func (s *Server) handleProceed(w http.ResponseWriter, r *http.Request) {
	_, router, ok := s.lookup(w, r)
	if !ok {
		return
	}
	draft, err := router.Proceed(r.Context())
	if err != nil {
		respondRouterError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newHandoffResponse(draft))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	_, router, ok := s.lookup(w, r)
	if !ok {
		return
	}
	router.Resume()
	respondJSON(w, http.StatusOK, router.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	_, router, ok := s.lookup(w, r)
	if !ok {
		return
	}
	router.NewChat(r.Context())
	respondJSON(w, http.StatusOK, router.Snapshot())
}

// readMessage accepts either a multipart form (text_input, image) or a JSON body.
// A rejected attachment is returned as an attachment error rather than a request error,
// together with the text sent alongside it.
func (s *Server) readMessage(w http.ResponseWriter, r *http.Request) (string, *conversation.Attachment, *analysis.Error, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req sendRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			return "", nil, nil, err
		}
		return req.Text, nil, nil, nil
	}

	maxBytes := s.cfg.MaxAttachmentBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, analysis.NewAttachmentError("The attachment is too large.", err), nil
		}
		return "", nil, nil, fmt.Errorf("parse multipart form: %w", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	text := r.FormValue("text_input")
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return text, nil, nil, nil
	}
	if err != nil {
		return text, nil, analysis.NewAttachmentError("The attachment could not be read.", err), nil
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	decision := policy.CheckAttachment(contentType, header.Size, maxBytes)
	if !decision.Allowed {
		s.logger.Info("attachment rejected",
			zap.String("content_type", contentType),
			zap.Int64("size", header.Size),
			zap.String("reason", decision.Reason),
		)
		return text, nil, analysis.NewAttachmentError(decision.Reason, nil), nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return text, nil, analysis.NewAttachmentError("The attachment could not be read.", err), nil
	}
	return text, &conversation.Attachment{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        buf.Bytes(),
	}, nil, nil
}

func newExchangeResponse(res triage.Result, snap triage.Snapshot) exchangeResponse {
	out := exchangeResponse{
		User:       res.User,
		Reply:      res.Reply,
		Outcome:    res.Outcome,
		Affordance: res.Affordance,
		Snapshot:   snap,
	}
	if res.Failure != nil {
		out.Failure = &failureView{
			Kind:      res.Failure.Kind,
			Message:   res.Failure.UserMessage(),
			Retryable: res.Failure.Retryable(),
		}
	}
	return out
}

func newHandoffResponse(d complaint.Draft) handoffResponse {
	return handoffResponse{TurnID: d.TurnID, Params: d.Params, URL: d.URL}
}
