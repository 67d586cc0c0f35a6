package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/history"
)

const (
	maxResponseBytes = 4 << 20
	maxErrorBytes    = 4 << 10
)

// HTTPClient posts each turn to the classifier endpoint as a multipart form.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient creates a client. timeout bounds the whole exchange; zero means 60s.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) Analyze(ctx context.Context, req Request) (Reply, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return Reply{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return Reply{}, &Error{Kind: KindTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(req.Token); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Reply{}, &Error{Kind: KindTransport, Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBytes))
		return Reply{}, &Error{
			Kind:   KindServer,
			Status: res.StatusCode,
			Detail: errorDetail(raw),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Reply{}, &Error{Kind: KindTransport, Err: fmt.Errorf("read response: %w", err)}
	}

	reply, err := ParseReply(raw)
	if err != nil {
		return Reply{}, &Error{Kind: KindMalformed, Err: err}
	}
	return reply, nil
}

// encodeForm writes the text_input, history and optional image fields.
func encodeForm(req Request) (io.Reader, string, error) {
	historyJSON, err := history.Marshal(req.History)
	if err != nil {
		return nil, "", &Error{Kind: KindTransport, Err: err}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("text_input", req.Text); err != nil {
		return nil, "", &Error{Kind: KindTransport, Err: fmt.Errorf("write text_input: %w", err)}
	}
	if err := w.WriteField("history", historyJSON); err != nil {
		return nil, "", &Error{Kind: KindTransport, Err: fmt.Errorf("write history: %w", err)}
	}

	if att := req.Attachment; att != nil {
		filename := att.Filename
		if filename == "" {
			filename = "attachment"
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", NewAttachmentError("", fmt.Errorf("create image part: %w", err))
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, "", NewAttachmentError("", fmt.Errorf("write image part: %w", err))
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", &Error{Kind: KindTransport, Err: fmt.Errorf("close form: %w", err)}
	}
	return &buf, w.FormDataContentType(), nil
}

// errorDetail pulls a readable message out of an error body (FastAPI uses "detail").
func errorDetail(raw []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, k := range []string{"detail", "error", "message"} {
			if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
