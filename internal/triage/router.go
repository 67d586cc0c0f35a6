// Package triage drives a conversation through the classifier: one send at a time, exactly
// one assistant turn per send, and the complaint affordances that follow a reply.
package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/complaint"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/history"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/observability"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/policy"
)

var (
	ErrBusy                  = errors.New("triage: a reply is still pending")
	ErrEmptyInput            = errors.New("triage: nothing to send")
	ErrHandedOff             = errors.New("triage: conversation was handed off to complaint submission")
	ErrAffordanceUnavailable = errors.New("triage: action not offered for the last reply")
	ErrDiscarded             = errors.New("triage: reply discarded")
)

// Apology is the fixed text of every error turn.
const Apology = "Sorry, something went wrong while analysing your message. Please try again."

const (
	triggerUser     = "user"
	triggerSentinel = "sentinel"
	previewRunes    = 80
)

// Config wires a Router. Store and Analyzer are required.
type Config struct {
	Store        *conversation.Store
	Analyzer     analysis.Analyzer
	Materializer complaint.Materializer
	// Token is forwarded to the classifier on every call.
	Token    string
	Notifier Notifier
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Result reports the turns a send produced. Failure is set when the classifier call failed
// and an error turn was appended instead of a reply.
type Result struct {
	User       conversation.Turn
	Reply      conversation.Turn
	Outcome    Outcome
	Affordance Affordance
	Failure    *analysis.Error
}

// Snapshot is a read-only projection of the router for rendering.
type Snapshot struct {
	Turns      []conversation.Turn      `json:"turns"`
	State      State                    `json:"state"`
	Outcome    Outcome                  `json:"outcome,omitempty"`
	Affordance Affordance               `json:"affordance"`
	Staged     *conversation.Attachment `json:"staged,omitempty"`
}

// Router is the per-conversation state machine. All methods are safe for concurrent use;
// at most one classifier call is in flight at a time.
type Router struct {
	mu      sync.Mutex
	state   State
	outcome Outcome
	// epoch changes on NewChat so replies to a cleared conversation are dropped.
	epoch uint64

	store        *conversation.Store
	analyzer     analysis.Analyzer
	materializer complaint.Materializer
	token        string
	notifier     Notifier
	metrics      *observability.Metrics
	logger       *zap.Logger

	obsMu     sync.RWMutex
	observers map[int]func(Event)
	nextObs   int
}

// New builds a router over an already restored store.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		state:        StateIdle,
		store:        cfg.Store,
		analyzer:     cfg.Analyzer,
		materializer: cfg.Materializer,
		token:        cfg.Token,
		notifier:     cfg.Notifier,
		metrics:      cfg.Metrics,
		logger:       logger,
		observers:    make(map[int]func(Event)),
	}
	r.outcome = OutcomeFor(r.store.Last())
	return r
}

// Subscribe registers fn for every event. fn runs on the goroutine that caused the event
// and must not block.
func (r *Router) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.obsMu.Lock()
			delete(r.observers, id)
			r.obsMu.Unlock()
		})
	}
}

// Send appends a user turn and the classifier's answer to it. When att is nil the staged
// attachment, if any, is sent. Classifier failures are not returned as errors: they produce
// an error turn and are reported in Result.Failure.
func (r *Router) Send(ctx context.Context, text string, att *conversation.Attachment) (Result, error) {
	return r.send(ctx, sendRequest{
		text:      strings.TrimSpace(text),
		att:       att,
		useStaged: true,
		trigger:   triggerUser,
	})
}

// StartComplaint sends the start-complaint sentinel. It is only offered after a threat analysis.
func (r *Router) StartComplaint(ctx context.Context) (Result, error) {
	return r.send(ctx, sendRequest{
		text:     conversation.StartComplaintSentinel,
		trigger:  triggerSentinel,
		requires: AffordanceStartComplaint,
	})
}

// Completion is the outcome of a send admitted by SendAsync or StartComplaintAsync.
type Completion struct {
	Result Result
	Err    error
}

// SendAsync admits a send like Send and waits for the classifier in the background.
// Admission errors, ErrBusy included, are returned immediately. The channel receives
// exactly one Completion and is then closed.
func (r *Router) SendAsync(ctx context.Context, text string, att *conversation.Attachment) (<-chan Completion, error) {
	return r.sendAsync(ctx, sendRequest{
		text:      strings.TrimSpace(text),
		att:       att,
		useStaged: true,
		trigger:   triggerUser,
	})
}

// StartComplaintAsync is StartComplaint with the reply awaited in the background.
func (r *Router) StartComplaintAsync(ctx context.Context) (<-chan Completion, error) {
	return r.sendAsync(ctx, sendRequest{
		text:     conversation.StartComplaintSentinel,
		trigger:  triggerSentinel,
		requires: AffordanceStartComplaint,
	})
}

// Proceed materializes the latest complaint draft and hands the conversation off to the
// submission form. Turns are left untouched so the user can come back.
func (r *Router) Proceed(ctx context.Context) (complaint.Draft, error) {
	r.mu.Lock()
	if err := r.guardLocked(); err != nil {
		r.mu.Unlock()
		return complaint.Draft{}, err
	}
	last, ok := r.store.Last()
	if AffordanceFor(last, ok) != AffordanceReviewAndSubmit {
		r.mu.Unlock()
		r.metrics.ObserveRejection("affordance")
		return complaint.Draft{}, ErrAffordanceUnavailable
	}
	draft, err := r.materializer.Build(last)
	if err != nil {
		r.mu.Unlock()
		return complaint.Draft{}, err
	}
	r.state = StateHandoffInitiated
	ev := r.stateEventLocked()
	r.mu.Unlock()

	r.metrics.ObserveHandoff()
	r.logger.Info("complaint handed off",
		zap.String("turn_id", draft.TurnID),
		zap.Int("params", len(draft.Params)),
	)
	r.emit(ev, Event{Type: EventHandoff, State: StateHandoffInitiated, Outcome: ev.Outcome, Affordance: ev.Affordance, Draft: &draft})
	return draft, nil
}

// Resume returns a handed-off conversation to idle.
func (r *Router) Resume() State {
	r.mu.Lock()
	if r.state != StateHandoffInitiated {
		s := r.state
		r.mu.Unlock()
		return s
	}
	r.state = StateIdle
	ev := r.stateEventLocked()
	r.mu.Unlock()

	r.emit(ev)
	return StateIdle
}

// NewChat clears the conversation. A reply still pending for the old conversation is dropped.
func (r *Router) NewChat(ctx context.Context) {
	r.mu.Lock()
	r.epoch++
	r.store.Clear(ctx)
	r.state = StateIdle
	r.outcome = OutcomeNone
	ev := r.stateEventLocked()
	r.mu.Unlock()

	r.logger.Info("conversation cleared")
	r.emit(Event{Type: EventCleared, State: StateIdle, Affordance: AffordanceNone}, ev)
}

// Stage holds an attachment for the next send.
func (r *Router) Stage(att conversation.Attachment) (conversation.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateHandoffInitiated {
		return conversation.Attachment{}, ErrHandedOff
	}
	return r.store.Stage(att), nil
}

// ReportAttachmentFailure records a capture or upload failure as a visible error turn and a
// notification. Any staged attachment is dropped.
func (r *Router) ReportAttachmentFailure(ctx context.Context, cause error) (conversation.Turn, error) {
	aerr := asAnalysisError(cause)
	if aerr.Kind != analysis.KindAttachment {
		aerr = analysis.NewAttachmentError("", cause)
	}

	r.mu.Lock()
	if err := r.guardLocked(); err != nil {
		r.mu.Unlock()
		return conversation.Turn{}, err
	}
	if staged, ok := r.store.Staged(); ok {
		r.store.DropStaged(staged.Ref)
	}
	turn := r.store.Append(ctx, errorTurn(aerr))
	r.outcome = OutcomeFailed
	ev := r.stateEventLocked()
	r.mu.Unlock()

	r.metrics.ObserveFailure(string(aerr.Kind), 0)
	r.logger.Warn("attachment failure", zap.Error(aerr))
	n := notificationFor(aerr)
	r.emit(Event{Type: EventTurnAppended, Turn: &turn, State: ev.State, Outcome: ev.Outcome, Affordance: ev.Affordance}, ev,
		Event{Type: EventNotification, State: ev.State, Notification: &n})
	r.notify(ctx, n)
	return turn, nil
}

// Snapshot returns the current turns and their projections.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.store.Last()
	snap := Snapshot{
		Turns:      r.store.Turns(),
		State:      r.state,
		Outcome:    r.outcome,
		Affordance: AffordanceFor(last, ok),
	}
	if staged, ok := r.store.Staged(); ok {
		staged.Data = nil
		snap.Staged = &staged
	}
	return snap
}

// SetToken replaces the credential forwarded on subsequent calls.
func (r *Router) SetToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// State returns the current state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

type sendRequest struct {
	text      string
	att       *conversation.Attachment
	useStaged bool
	trigger   string
	requires  Affordance
}

// pendingSend is an admitted send whose reply has not been appended yet.
type pendingSend struct {
	req      sendRequest
	userTurn conversation.Turn
	prior    []conversation.Turn
	att      *conversation.Attachment
	token    string
	epoch    uint64
}

func (r *Router) send(ctx context.Context, req sendRequest) (Result, error) {
	p, err := r.admit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return r.complete(ctx, p)
}

func (r *Router) sendAsync(ctx context.Context, req sendRequest) (<-chan Completion, error) {
	p, err := r.admit(ctx, req)
	if err != nil {
		return nil, err
	}
	done := make(chan Completion, 1)
	go func() {
		res, err := r.complete(ctx, p)
		done <- Completion{Result: res, Err: err}
		close(done)
	}()
	return done, nil
}

// admit runs the guards and appends the user turn. After it returns the router is
// awaiting a response and every other send is rejected with ErrBusy.
func (r *Router) admit(ctx context.Context, req sendRequest) (*pendingSend, error) {
	r.mu.Lock()
	if err := r.guardLocked(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if req.requires != "" && AffordanceFor(r.store.Last()) != req.requires {
		r.mu.Unlock()
		r.metrics.ObserveRejection("affordance")
		return nil, ErrAffordanceUnavailable
	}

	att := req.att
	switch {
	case att != nil:
		staged := r.store.Stage(*att)
		att = &staged
	case req.useStaged:
		if staged, ok := r.store.Staged(); ok {
			att = &staged
		}
	}
	if req.text == "" && att == nil {
		r.mu.Unlock()
		r.metrics.ObserveRejection("empty")
		return nil, ErrEmptyInput
	}

	p := &pendingSend{
		req:   req,
		prior: r.store.Turns(),
		att:   att,
		token: r.token,
	}
	userTurn := conversation.Turn{Role: conversation.RoleUser, Content: req.text}
	if att != nil {
		userTurn.AttachmentRef = att.Ref
	}
	p.userTurn = r.store.Append(ctx, userTurn)
	p.epoch = r.epoch
	r.state = StateAwaitingResponse
	awaiting := r.stateEventLocked()
	r.mu.Unlock()

	r.metrics.ObserveSend(req.trigger, att != nil)
	r.logger.Info("turn sent",
		zap.String("trigger", req.trigger),
		zap.String("turn_id", p.userTurn.ID),
		zap.String("text_preview", policy.LogPreview(req.text, previewRunes)),
		zap.Bool("attachment", att != nil),
		zap.Int("history_len", len(p.prior)),
	)
	r.emit(Event{Type: EventTurnAppended, Turn: &p.userTurn, State: awaiting.State, Affordance: AffordanceNone}, awaiting)
	return p, nil
}

// complete calls the classifier for an admitted send and appends exactly one assistant turn.
func (r *Router) complete(ctx context.Context, p *pendingSend) (Result, error) {
	att := p.att
	userTurn := p.userTurn
	epoch := p.epoch

	started := time.Now()
	reply, callErr := r.call(ctx, p.req.text, p.token, p.prior, att)
	elapsed := time.Since(started)

	// The caller is gone; nothing is appended for a torn-down session.
	if callErr != nil && errors.Is(ctx.Err(), context.Canceled) {
		return Result{}, r.discard(epoch, att, ctx.Err())
	}

	// Persist even if the caller's context ends while the reply is being stored.
	persistCtx := context.WithoutCancel(ctx)

	r.mu.Lock()
	if r.epoch != epoch {
		r.mu.Unlock()
		r.logger.Info("reply discarded after conversation was cleared", zap.String("turn_id", userTurn.ID))
		return Result{}, ErrDiscarded
	}
	if att != nil {
		r.store.DropStaged(att.Ref)
	}

	res := Result{User: userTurn}
	var assistant conversation.Turn
	if callErr != nil {
		res.Failure = asAnalysisError(callErr)
		assistant = errorTurn(res.Failure)
	} else {
		assistant = reply.Turn()
	}
	res.Reply = r.store.Append(persistCtx, assistant)
	res.Outcome = OutcomeFor(res.Reply, true)
	res.Affordance = AffordanceFor(res.Reply, true)
	r.outcome = res.Outcome
	r.state = StateIdle
	idle := r.stateEventLocked()
	r.mu.Unlock()

	events := []Event{{Type: EventTurnAppended, Turn: &res.Reply, State: idle.State, Outcome: idle.Outcome, Affordance: idle.Affordance}, idle}
	if res.Failure != nil {
		r.metrics.ObserveFailure(string(res.Failure.Kind), elapsed)
		r.logger.Warn("analysis failed",
			zap.String("turn_id", userTurn.ID),
			zap.String("kind", string(res.Failure.Kind)),
			zap.Int("status", res.Failure.Status),
			zap.Duration("elapsed", elapsed),
			zap.Error(res.Failure),
		)
		n := notificationFor(res.Failure)
		events = append(events, Event{Type: EventNotification, State: StateIdle, Notification: &n})
		r.emit(events...)
		r.notify(persistCtx, n)
		return res, nil
	}

	r.metrics.ObserveReply(string(res.Reply.Intent), elapsed)
	r.logger.Info("reply appended",
		zap.String("turn_id", res.Reply.ID),
		zap.String("intent", string(res.Reply.Intent)),
		zap.String("affordance", string(res.Affordance)),
		zap.Duration("elapsed", elapsed),
	)
	r.emit(events...)
	return res, nil
}

func (r *Router) call(ctx context.Context, text, token string, prior []conversation.Turn, att *conversation.Attachment) (analysis.Reply, error) {
	entries, err := history.Build(prior)
	if err != nil {
		return analysis.Reply{}, &analysis.Error{Kind: analysis.KindMalformed, Detail: "The conversation history could not be encoded.", Err: err}
	}
	return r.analyzer.Analyze(ctx, analysis.Request{
		Text:       text,
		History:    entries,
		Attachment: att,
		Token:      token,
	})
}

// discard returns the router to idle without appending a reply.
func (r *Router) discard(epoch uint64, att *conversation.Attachment, cause error) error {
	r.mu.Lock()
	if r.epoch != epoch {
		r.mu.Unlock()
		return ErrDiscarded
	}
	if att != nil {
		r.store.DropStaged(att.Ref)
	}
	r.state = StateIdle
	ev := r.stateEventLocked()
	r.mu.Unlock()

	r.logger.Info("reply discarded after caller went away", zap.Error(cause))
	r.emit(ev)
	return errors.Join(ErrDiscarded, cause)
}

func (r *Router) guardLocked() error {
	switch r.state {
	case StateAwaitingResponse:
		r.metrics.ObserveRejection("busy")
		return ErrBusy
	case StateHandoffInitiated:
		r.metrics.ObserveRejection("handed_off")
		return ErrHandedOff
	default:
		return nil
	}
}

func (r *Router) stateEventLocked() Event {
	last, ok := r.store.Last()
	affordance := AffordanceFor(last, ok)
	if r.state == StateAwaitingResponse {
		affordance = AffordanceNone
	}
	return Event{Type: EventStateChanged, State: r.state, Outcome: r.outcome, Affordance: affordance}
}

func (r *Router) emit(events ...Event) {
	r.obsMu.RLock()
	observers := make([]func(Event), 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.obsMu.RUnlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}

func (r *Router) notify(ctx context.Context, n Notification) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, n)
	}
}

func asAnalysisError(err error) *analysis.Error {
	var aerr *analysis.Error
	if errors.As(err, &aerr) {
		return aerr
	}
	return &analysis.Error{Kind: analysis.KindTransport, Err: err}
}

func errorTurn(aerr *analysis.Error) conversation.Turn {
	content := Apology
	if detail := strings.TrimSpace(aerr.UserMessage()); detail != "" {
		content += "\n\n" + detail
	}
	return conversation.Turn{Role: conversation.RoleAssistant, Content: content}
}

func notificationFor(aerr *analysis.Error) Notification {
	return Notification{
		Kind:      aerr.Kind,
		Message:   aerr.UserMessage(),
		Retryable: aerr.Retryable(),
	}
}
