package support

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sender transmits a finished report together with its log bundle.
type Sender interface {
	SendReport(ctx context.Context, email, message string, h Handle) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, email, message string, h Handle) error

func (f SenderFunc) SendReport(ctx context.Context, email, message string, h Handle) error {
	return f(ctx, email, message, h)
}

const defaultAttemptTimeout = 2 * time.Minute

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger used for attempt outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(w *Workflow) {
		if r != nil {
			w.recorder = r
		}
	}
}

// WithAttemptTimeout bounds a single collect+send attempt. Zero disables it.
func WithAttemptTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.timeout = d }
}

// WithObserver registers fn to be called on every state transition, in order.
// fn runs with the workflow locked and must not call back into it.
func WithObserver(fn func(State)) Option {
	return func(w *Workflow) { w.observers = append(w.observers, fn) }
}

// Workflow drives one problem report from draft to delivery.
//
// Transitions: INITIAL -> LOADING -> SUCCESS | FAILED, FAILED -> INITIAL (EditAgain)
// and FAILED -> LOADING (Retry). Events that are not valid in the current state
// are ignored and reported as not accepted. At most one attempt runs at a time.
type Workflow struct {
	logger    *slog.Logger
	account   AccountReader
	sender    Sender
	cache     *LogCache
	recorder  Recorder
	timeout   time.Duration
	observers []func(State)

	mu         sync.Mutex
	state      State
	draft      Draft
	lastActive time.Time
}

// NewWorkflow returns a workflow in StateInitial with an empty draft and an
// empty log cache.
func NewWorkflow(account AccountReader, collector Collector, sender Sender, opts ...Option) *Workflow {
	w := &Workflow{
		logger:     slog.Default(),
		account:    account,
		sender:     sender,
		recorder:   nopRecorder{},
		timeout:    defaultAttemptTimeout,
		state:      StateInitial,
		lastActive: time.Now(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cache = NewLogCache(collector, w.recorder)
	w.cache.timeout = w.timeout
	return w
}

// Snapshot is what the presentation layer renders.
type Snapshot struct {
	State     State  `json:"state"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	CanSubmit bool   `json:"canSubmit"`
	// ContactEmail is set after a successful send when the reporter left an address.
	ContactEmail string `json:"contactEmail,omitempty"`
}

// Snapshot returns the current state and draft.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		State:     w.state,
		Email:     w.draft.Email,
		Message:   w.draft.Message,
		CanSubmit: w.state == StateInitial && w.draft.Valid(),
	}
	if w.state == StateSuccess {
		s.ContactEmail = strings.TrimSpace(w.draft.Email)
	}
	return s
}

// State returns the current lifecycle state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Draft returns a copy of the current draft.
func (w *Workflow) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// LastActive returns when the workflow was last touched by an inbound event.
func (w *Workflow) LastActive() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

func (w *Workflow) SetEmail(v string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.SetEmail(v)
	w.lastActive = time.Now()
}

func (w *Workflow) SetMessage(v string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.SetMessage(v)
	w.lastActive = time.Now()
}

// Submit starts delivery of the current draft. It is accepted only from
// StateInitial; the workflow is LOADING by the time Submit returns. The
// returned channel yields the final state once and is then closed.
//
// Submit does not validate the draft. Callers that accept edits concurrently
// use TrySubmit.
func (w *Workflow) Submit(ctx context.Context) (<-chan State, bool) {
	ch, err := w.start(ctx, AttemptSubmit, StateInitial, false)
	return ch, err == nil
}

// Retry re-runs delivery with the existing draft after a failure. A bundle that
// was collected before the failure is reused.
func (w *Workflow) Retry(ctx context.Context) (<-chan State, bool) {
	ch, err := w.start(ctx, AttemptRetry, StateFailed, false)
	return ch, err == nil
}

// TrySubmit is Submit with the draft validated on the same snapshot that is
// sent. It returns ErrNotAccepted outside StateInitial and ErrInvalidDraft when
// the message is blank.
func (w *Workflow) TrySubmit(ctx context.Context) (<-chan State, error) {
	return w.start(ctx, AttemptSubmit, StateInitial, true)
}

// TryRetry is Retry with the same validation as TrySubmit.
func (w *Workflow) TryRetry(ctx context.Context) (<-chan State, error) {
	return w.start(ctx, AttemptRetry, StateFailed, true)
}

// EditAgain returns a failed workflow to StateInitial so the draft can be
// changed. The collected bundle is kept.
func (w *Workflow) EditAgain() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateFailed {
		return false
	}
	w.lastActive = time.Now()
	w.setStateLocked(StateInitial)
	return true
}

// ViewLog returns the bundle handle, collecting it on first use. It shares the
// cache with Submit and Retry and never changes the submission state.
func (w *Workflow) ViewLog(ctx context.Context) (Handle, error) {
	w.mu.Lock()
	w.lastActive = time.Now()
	w.mu.Unlock()

	return w.collect(ctx)
}

// Collections returns how many times the collector has been invoked.
func (w *Workflow) Collections() int64 {
	return w.cache.Collections()
}

func (w *Workflow) start(ctx context.Context, kind AttemptKind, from State, validate bool) (<-chan State, error) {
	w.mu.Lock()
	if w.state != from {
		w.mu.Unlock()
		return nil, ErrNotAccepted
	}
	draft := w.draft
	if validate && !draft.Valid() {
		w.mu.Unlock()
		return nil, ErrInvalidDraft
	}
	w.lastActive = time.Now()
	w.setStateLocked(StateLoading)
	w.mu.Unlock()

	result := make(chan State, 1)
	go w.run(context.WithoutCancel(ctx), kind, draft, result)
	return result, nil
}

func (w *Workflow) run(ctx context.Context, kind AttemptKind, draft Draft, result chan<- State) {
	defer close(result)

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	began := time.Now()
	err := w.deliver(ctx, draft)
	elapsed := time.Since(began)

	outcome := StateSuccess
	if err != nil {
		outcome = StateFailed
		w.logger.Warn("problem report failed",
			"kind", kind,
			"stage", StageOf(err),
			"duration", elapsed,
		)
	} else {
		w.logger.Info("problem report sent",
			"kind", kind,
			"email_provided", strings.TrimSpace(draft.Email) != "",
			"message_len", len(draft.Message),
			"duration", elapsed,
		)
	}
	w.recorder.ObserveAttempt(kind, outcome, StageOf(err), elapsed)

	w.mu.Lock()
	w.setStateLocked(outcome)
	w.mu.Unlock()

	result <- outcome
}

func (w *Workflow) deliver(ctx context.Context, draft Draft) error {
	h, err := w.collect(ctx)
	if err != nil {
		return err
	}
	if err := w.sender.SendReport(ctx, draft.Email, draft.Message, h); err != nil {
		return &StageError{Stage: StageSend, Err: err}
	}
	return nil
}

// collect resolves the bundle handle. The account is only consulted when
// nothing has been collected yet.
func (w *Workflow) collect(ctx context.Context) (Handle, error) {
	if h, ok := w.cache.Cached(); ok {
		w.recorder.ObserveCollection(CollectionCached)
		return h, nil
	}

	acct, err := w.account.Account(ctx)
	if err != nil {
		return "", &StageError{Stage: StageAccount, Err: err}
	}

	h, err := w.cache.GetOrCollect(ctx, RedactionList(acct))
	if err != nil {
		return "", &StageError{Stage: StageCollect, Err: err}
	}
	return h, nil
}

func (w *Workflow) setStateLocked(s State) {
	w.state = s
	for _, fn := range w.observers {
		fn(s)
	}
}
