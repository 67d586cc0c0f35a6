package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

const helpText = `Commands:
  /attach <path>  attach a file to the next message
  /complaint      start drafting a complaint (after an analysis)
  /submit         open the drafted complaint in the submission form
  /resume         continue after submitting
  /new            start a new chat
  /help           show this help
  /quit           exit`

type client struct {
	router *triage.Router
	out    io.Writer
	// prompt is only printed for interactive input.
	prompt bool
}

// toastNotifier prints failure notifications as a one-line notice.
type toastNotifier struct {
	out io.Writer
}

func (n toastNotifier) Notify(_ context.Context, note triage.Notification) {
	msg := note.Message
	if note.Retryable {
		msg += " Send it again to retry."
	}
	fmt.Fprintf(n.out, "%s %s\n", color.YellowString("notice:"), msg)
}

func newClient(r *triage.Router, out io.Writer) *client {
	return &client{router: r, out: out}
}

func (c *client) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(c.out, "Describe the incident, or /help for commands.")
	scanner := bufio.NewScanner(in)
	for {
		if c.prompt {
			fmt.Fprint(c.out, "> ")
		}
		if !scanner.Scan() {
			if c.prompt {
				fmt.Fprintln(c.out)
			}
			return scanner.Err()
		}
		quit, err := c.handle(ctx, scanner.Text())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(c.out, "%s %s\n", color.RedString("!"), describeError(err))
		}
		if quit {
			return nil
		}
	}
}

// handle executes one input line.
func (c *client) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(c.out, helpText)
		return false, nil
	case "/attach":
		att, err := readAttachment(strings.TrimSpace(arg))
		if err != nil {
			_, reportErr := c.router.ReportAttachmentFailure(ctx, analysis.NewAttachmentError("The file could not be read.", err))
			c.printLast()
			return false, reportErr
		}
		staged, err := c.router.Stage(att)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Attached %s (%s).\n", staged.Filename, staged.ContentType)
		return false, nil
	case "/complaint":
		res, err := c.router.StartComplaint(ctx)
		if err != nil {
			return false, err
		}
		c.printTurn(res.Reply)
		c.printAffordance(res.Affordance)
		return false, nil
	case "/submit":
		draft, err := c.router.Proceed(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Complaint ready. Open to submit:\n  %s\n", draft.URL)
		fmt.Fprintln(c.out, "Type /resume to continue this conversation.")
		return false, nil
	case "/resume":
		c.router.Resume()
		fmt.Fprintln(c.out, "Resumed.")
		return false, nil
	case "/new":
		c.router.NewChat(ctx)
		fmt.Fprintln(c.out, "Started a new chat.")
		return false, nil
	}
	if strings.HasPrefix(cmd, "/") {
		return false, fmt.Errorf("unknown command %s", cmd)
	}

	res, err := c.router.Send(ctx, line, nil)
	if err != nil {
		return false, err
	}
	c.printTurn(res.Reply)
	c.printAffordance(res.Affordance)
	return false, nil
}

func (c *client) printHistory() {
	snap := c.router.Snapshot()
	if len(snap.Turns) == 0 {
		fmt.Fprintln(c.out, "No conversation yet.")
		return
	}
	for _, t := range snap.Turns {
		c.printTurn(t)
	}
	c.printAffordance(snap.Affordance)
}

func (c *client) printLast() {
	snap := c.router.Snapshot()
	if n := len(snap.Turns); n > 0 {
		c.printTurn(snap.Turns[n-1])
	}
}

func (c *client) printTurn(t conversation.Turn) {
	if t.Role == conversation.RoleUser {
		content := t.Content
		if content == conversation.StartComplaintSentinel {
			content = "(start complaint)"
		}
		if t.AttachmentRef != "" {
			content += " [attachment]"
		}
		fmt.Fprintf(c.out, "you: %s\n", content)
		return
	}

	fmt.Fprintf(c.out, "assistant: %s\n", t.Content)
	if a := t.Analysis; a != nil {
		if a.Severity != "" {
			fmt.Fprintf(c.out, "  severity: %s\n", severityString(a.Severity))
		}
		if a.DetectionSummary != "" {
			fmt.Fprintf(c.out, "  summary: %s\n", a.DetectionSummary)
		}
		for i, step := range a.Playbook {
			fmt.Fprintf(c.out, "  %d. %s\n", i+1, step)
		}
		if len(a.EvidenceToCollect) > 0 {
			fmt.Fprintf(c.out, "  evidence: %s\n", strings.Join(a.EvidenceToCollect, ", "))
		}
	}
	if s := t.Summary; s != nil {
		fmt.Fprintf(c.out, "  title: %s\n  category: %s\n  description: %s\n", s.Title, s.Category, s.Description)
	}
}

func (c *client) printAffordance(a triage.Affordance) {
	switch a {
	case triage.AffordanceStartComplaint:
		fmt.Fprintln(c.out, "Type /complaint to file a complaint.")
	case triage.AffordanceReviewAndSubmit:
		fmt.Fprintln(c.out, "Type /submit to review and submit.")
	}
}

func severityString(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return color.RedString(severity)
	case "medium":
		return color.YellowString(severity)
	default:
		return color.GreenString(severity)
	}
}

func readAttachment(path string) (conversation.Attachment, error) {
	if path == "" {
		return conversation.Attachment{}, errors.New("usage: /attach <path>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return conversation.Attachment{}, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return conversation.Attachment{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func describeError(err error) string {
	switch {
	case errors.Is(err, triage.ErrBusy):
		return "still waiting for the previous reply"
	case errors.Is(err, triage.ErrEmptyInput):
		return "type a message or attach a file first"
	case errors.Is(err, triage.ErrHandedOff):
		return "this conversation was handed off; type /resume to continue"
	case errors.Is(err, triage.ErrAffordanceUnavailable):
		return "that action is not available for the last reply"
	default:
		return err.Error()
	}
}
