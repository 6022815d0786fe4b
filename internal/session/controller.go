// Package session runs one proctored exam session: it owns the countdown, the
// proctoring monitor and the response ledger, and finalizes the attempt
// exactly once.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/ledger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

const (
	defaultFullscreenTimeout = 10 * time.Second
	defaultSubmitTimeout     = 15 * time.Second
	exitFullscreenTimeout    = 3 * time.Second
	inboxSize                = 64
)

// Config wires a Controller.
type Config struct {
	SessionID uuid.UUID // generated when zero
	UserID    string
	Module    model.Module
	Questions []model.CandidateQuestion

	Host     proctor.Host
	Keys     KeySource
	Store    ResultStore
	Observer Observer

	Log          zerolog.Logger
	Clock        func() time.Time
	TimerOptions []countdown.Option

	FullscreenTimeout time.Duration
	SubmitTimeout     time.Duration
}

type finalizeResult struct {
	outcome *Outcome
	err     error
}

// Controller is the authoritative state machine of one session.
//
// All state lives on a single goroutine. Public methods, timer callbacks and
// host signals are all delivered to it as closures, so transitions are
// serialized and never race.
type Controller struct {
	id                uuid.UUID
	userID            string
	module            model.Module
	questions         []model.CandidateQuestion
	keys              KeySource
	store             ResultStore
	observer          Observer
	log               zerolog.Logger
	now               func() time.Time
	fullscreenTimeout time.Duration
	submitTimeout     time.Duration

	timer   *countdown.Timer
	monitor *proctor.Monitor
	ledger  *ledger.Ledger

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the run goroutine.
	state     State
	index     int
	remaining int
	pending   *model.Attempt
	key       model.AnswerKey
	inFlight  bool
	lastErr   error
	outcome   *Outcome
	waiters   []chan finalizeResult
}

// New validates cfg and starts the controller goroutine in StateNotStarted.
func New(cfg Config) (*Controller, error) {
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if cfg.Host == nil || cfg.Keys == nil || cfg.Store == nil {
		return nil, fmt.Errorf("session: host, key source and result store are required")
	}

	questions := append([]model.CandidateQuestion(nil), cfg.Questions...)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Number < questions[j].Number })

	ids := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}

	c := &Controller{
		id:                cfg.SessionID,
		userID:            cfg.UserID,
		module:            cfg.Module,
		questions:         questions,
		keys:              cfg.Keys,
		store:             cfg.Store,
		observer:          cfg.Observer,
		now:               cfg.Clock,
		fullscreenTimeout: cfg.FullscreenTimeout,
		submitTimeout:     cfg.SubmitTimeout,
		timer:             countdown.New(cfg.TimerOptions...),
		ledger:            ledger.New(ids),
		inbox:             make(chan func(), inboxSize),
		quit:              make(chan struct{}),
		done:              make(chan struct{}),
		state:             StateNotStarted,
		remaining:         cfg.Module.DurationSeconds(),
	}
	if c.id == uuid.Nil {
		c.id = uuid.New()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.fullscreenTimeout <= 0 {
		c.fullscreenTimeout = defaultFullscreenTimeout
	}
	if c.submitTimeout <= 0 {
		c.submitTimeout = defaultSubmitTimeout
	}
	c.log = cfg.Log.With().
		Str("component", "session").
		Str("session_id", c.id.String()).
		Str("module_id", c.module.ID.String()).
		Str("user_id", c.userID).
		Logger()
	c.monitor = proctor.NewMonitor(cfg.Host, c.log,
		proctor.WithClock(c.now),
		proctor.WithViolationHandler(c.onViolation),
	)

	go c.run()
	return c, nil
}

// ID returns the session ID.
func (c *Controller) ID() uuid.UUID { return c.id }

// ModuleID returns the module this session runs.
func (c *Controller) ModuleID() uuid.UUID { return c.module.ID }

// UserID returns the candidate running this session.
func (c *Controller) UserID() string { return c.userID }

// Done is closed once the controller has been torn down.
func (c *Controller) Done() <-chan struct{} { return c.done }

// ─── Loop ──────────────────────────────────────────────────────────

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.quit:
			c.teardown()
			return
		}
	}
}

// call runs fn on the controller goroutine and waits for it.
func (c *Controller) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.inbox <- func() { fn(); close(finished) }:
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Dropped once the controller is closed.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.quit:
	}
}

func (c *Controller) teardown() {
	c.timer.Stop()
	c.monitor.Deactivate()
	for _, w := range c.waiters {
		w <- finalizeResult{err: ErrClosed}
	}
	c.waiters = nil
	c.log.Debug().Str("state", string(c.state)).Msg("Session torn down")
}

// Close stops the countdown, releases the host listener and ends the
// controller goroutine. A finalize still in flight completes in the store but
// its result is discarded. Close must not be called from an Observer.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
}

// ─── Public operations ─────────────────────────────────────────────

// Start moves the session to active: the countdown starts, monitoring is
// activated and full-screen is requested in the background. A refused
// full-screen request degrades the session but never fails Start.
func (c *Controller) Start(ctx context.Context) (View, error) {
	var (
		v   View
		err error
	)
	if cerr := c.call(ctx, func() {
		if err = c.start(); err == nil {
			v = c.view()
		}
	}); cerr != nil {
		return View{}, cerr
	}
	return v, err
}

// Select records (or replaces) the answer for a question.
func (c *Controller) Select(ctx context.Context, questionID uuid.UUID, key model.OptionKey) (View, error) {
	return c.mutate(ctx, func() error {
		return c.ledger.Select(questionID, key)
	})
}

// GoTo moves to the question at index, clamped to the valid range.
func (c *Controller) GoTo(ctx context.Context, index int) (View, error) {
	return c.mutate(ctx, func() error {
		c.goTo(index)
		return nil
	})
}

// Next moves forward one question; a no-op on the last one.
func (c *Controller) Next(ctx context.Context) (View, error) {
	return c.mutate(ctx, func() error {
		c.goTo(c.index + 1)
		return nil
	})
}

// Previous moves back one question; a no-op on the first one.
func (c *Controller) Previous(ctx context.Context) (View, error) {
	return c.mutate(ctx, func() error {
		c.goTo(c.index - 1)
		return nil
	})
}

// View returns the current snapshot.
func (c *Controller) View(ctx context.Context) (View, error) {
	var v View
	if err := c.call(ctx, func() { v = c.view() }); err != nil {
		return View{}, err
	}
	return v, nil
}

// Violations returns a copy of the violation log in emission order.
func (c *Controller) Violations(ctx context.Context) ([]model.ViolationEvent, error) {
	var out []model.ViolationEvent
	if err := c.call(ctx, func() { out = c.monitor.Violations() }); err != nil {
		return nil, err
	}
	return out, nil
}

// Submit finalizes the session on the candidate's request. When the session
// is already finalizing the call joins the pending attempt; when it is
// finalized the stored outcome is returned.
func (c *Controller) Submit(ctx context.Context) (*Outcome, error) {
	waiter := make(chan finalizeResult, 1)
	if err := c.call(ctx, func() { c.beginFinalize(model.TriggerSubmitted, waiter) }); err != nil {
		return nil, err
	}
	return c.wait(ctx, waiter)
}

// Retry resubmits the attempt built at the first finalize after a store
// failure. The snapshot is not recomputed.
func (c *Controller) Retry(ctx context.Context) (*Outcome, error) {
	waiter := make(chan finalizeResult, 1)
	if err := c.call(ctx, func() { c.retry(waiter) }); err != nil {
		return nil, err
	}
	return c.wait(ctx, waiter)
}

func (c *Controller) wait(ctx context.Context, waiter <-chan finalizeResult) (*Outcome, error) {
	select {
	case res := <-waiter:
		return res.outcome, res.err
	case <-c.done:
		select {
		case res := <-waiter:
			return res.outcome, res.err
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) mutate(ctx context.Context, fn func() error) (View, error) {
	var (
		v   View
		err error
	)
	if cerr := c.call(ctx, func() {
		if c.state != StateActive {
			err = ErrNotActive
			return
		}
		if err = fn(); err == nil {
			v = c.view()
		}
	}); cerr != nil {
		return View{}, cerr
	}
	return v, err
}

// ─── Loop-side transitions ─────────────────────────────────────────

func (c *Controller) start() error {
	if c.state != StateNotStarted {
		return ErrAlreadyStarted
	}

	total := c.module.DurationSeconds()
	c.remaining = total
	if err := c.timer.Start(total,
		func(left int) { c.post(func() { c.onTick(left) }) },
		func() { c.post(c.onExpired) },
	); err != nil {
		return fmt.Errorf("start countdown: %w", err)
	}
	c.monitor.Activate(func(sig proctor.Signal) {
		c.post(func() { c.onSignal(sig) })
	})
	c.setState(StateActive)
	c.log.Info().Int("duration_seconds", total).Int("questions", len(c.questions)).Msg("Session started")

	go c.requestFullscreen()
	return nil
}

func (c *Controller) requestFullscreen() {
	ctx, cancel := context.WithTimeout(context.Background(), c.fullscreenTimeout)
	defer cancel()

	if err := c.monitor.EnterFullscreen(ctx); err != nil {
		c.post(func() {
			if c.state == StateActive {
				c.emit(Event{Kind: EventFullscreenDenied, Err: err})
			}
		})
	}
}

func (c *Controller) goTo(index int) {
	if index < 0 {
		index = 0
	}
	if last := len(c.questions) - 1; index > last {
		index = last
	}
	c.index = index
}

func (c *Controller) onTick(left int) {
	if c.state != StateActive {
		return
	}
	c.remaining = left
	c.emit(Event{Kind: EventTick, Remaining: left})
}

func (c *Controller) onExpired() {
	if c.state != StateActive {
		return
	}
	c.remaining = 0
	c.log.Info().Msg("Time expired, auto-submitting")
	c.beginFinalize(model.TriggerExpired, nil)
}

// onSignal runs a host signal through the monitor. Suppressed signals are
// echoed back so the client cancels the default browser action.
func (c *Controller) onSignal(sig proctor.Signal) {
	if out := c.monitor.Handle(sig); out.Suppressed {
		c.emit(Event{Kind: EventSuppressed, Signal: &sig})
	}
}

func (c *Controller) onViolation(ev model.ViolationEvent) {
	c.emit(Event{Kind: EventViolation, Violation: &ev, Violations: c.monitor.Count()})
}

// beginFinalize handles every finalize trigger. Only the first one leaving
// StateActive builds the attempt; later triggers join or read the outcome.
func (c *Controller) beginFinalize(trigger model.FinalizeTrigger, waiter chan finalizeResult) {
	switch c.state {
	case StateNotStarted:
		notify(waiter, finalizeResult{err: ErrNotActive})
		return
	case StateFinalized:
		notify(waiter, finalizeResult{outcome: c.outcome.clone()})
		return
	case StateFinalizing:
		if c.inFlight {
			c.addWaiter(waiter)
			return
		}
		notify(waiter, finalizeResult{err: c.lastErr})
		return
	}

	// Deactivate before leaving full-screen so the exit is not a violation.
	c.timer.Stop()
	c.monitor.Deactivate()
	exitCtx, cancel := context.WithTimeout(context.Background(), exitFullscreenTimeout)
	_ = c.monitor.ExitFullscreen(exitCtx)
	cancel()

	elapsed := c.module.DurationSeconds() - c.remaining
	c.pending = &model.Attempt{
		SessionID:            c.id,
		UserID:               c.userID,
		ModuleID:             c.module.ID,
		TotalQuestions:       len(c.questions),
		TimeTakenMinutes:     minutesTaken(elapsed),
		Answers:              c.ledger.Snapshot(),
		ProctoringViolations: c.monitor.Count(),
		Trigger:              trigger,
		CompletedAt:          c.now().UTC(),
	}

	c.setState(StateFinalizing)
	c.log.Info().
		Str("trigger", string(trigger)).
		Int("answered", len(c.pending.Answers)).
		Int("violations", c.pending.ProctoringViolations).
		Msg("Finalizing attempt")

	c.addWaiter(waiter)
	c.dispatch()
}

func (c *Controller) retry(waiter chan finalizeResult) {
	switch {
	case c.state == StateFinalized:
		notify(waiter, finalizeResult{outcome: c.outcome.clone()})
	case c.state == StateFinalizing && c.inFlight:
		c.addWaiter(waiter)
	case c.state == StateFinalizing && c.lastErr != nil:
		c.log.Info().Msg("Retrying attempt submission")
		c.addWaiter(waiter)
		c.dispatch()
	default:
		notify(waiter, finalizeResult{err: ErrNothingToRetry})
	}
}

// dispatch runs the key fetch, scoring and store call off the loop so that
// a slow store never stalls the session.
func (c *Controller) dispatch() {
	c.inFlight = true
	c.lastErr = nil
	attempt := c.pending.Clone()
	key := c.key

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
		defer cancel()

		outcome, key, err := c.finalize(ctx, attempt, key)
		c.post(func() { c.finishFinalize(outcome, key, err) })
	}()
}

// finalize only touches immutable controller fields; it runs off the loop.
func (c *Controller) finalize(ctx context.Context, attempt *model.Attempt, key model.AnswerKey) (*Outcome, model.AnswerKey, error) {
	if key == nil {
		full, err := c.keys.AnswerKey(ctx, attempt.ModuleID)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch answer key: %w", err)
		}
		// Restrict to this session's questions so the total never drifts.
		key = make(model.AnswerKey, len(c.questions))
		for _, q := range c.questions {
			key[q.ID] = full[q.ID]
		}
	}

	result := grading.Evaluate(attempt.Answers, key)
	attempt.Score = result.Score

	saved, err := c.store.SaveAttempt(ctx, attempt)
	if err != nil {
		return nil, key, fmt.Errorf("save attempt: %w", err)
	}

	return &Outcome{
		Attempt: *saved.Clone(),
		Result:  result,
		Review:  grading.Review(c.questions, attempt.Answers, key),
	}, key, nil
}

func (c *Controller) finishFinalize(outcome *Outcome, key model.AnswerKey, err error) {
	c.inFlight = false
	if key != nil {
		c.key = key
	}

	waiters := c.waiters
	c.waiters = nil

	if err != nil {
		c.lastErr = &SubmitError{Err: err}
		c.log.Error().Err(err).Msg("Attempt submission failed, awaiting retry")
		for _, w := range waiters {
			w <- finalizeResult{err: c.lastErr}
		}
		c.emit(Event{Kind: EventSubmitFailed, Err: c.lastErr, View: ptr(c.view())})
		return
	}

	c.outcome = outcome
	c.setState(StateFinalized)
	c.log.Info().
		Str("attempt_id", outcome.Attempt.ID.String()).
		Int("score", outcome.Result.Score).
		Int("percentage", outcome.Result.Percentage).
		Msg("Attempt finalized")
	for _, w := range waiters {
		w <- finalizeResult{outcome: outcome.clone()}
	}
	c.emit(Event{Kind: EventFinalized, Trigger: outcome.Attempt.Trigger, Outcome: outcome.clone()})
}

func (c *Controller) addWaiter(w chan finalizeResult) {
	if w != nil {
		c.waiters = append(c.waiters, w)
	}
}

func notify(w chan finalizeResult, res finalizeResult) {
	if w != nil {
		w <- res
	}
}

func (c *Controller) setState(s State) {
	c.state = s
	c.emit(Event{Kind: EventStateChanged, View: ptr(c.view())})
}

func (c *Controller) emit(ev Event) {
	if c.observer == nil {
		return
	}
	ev.SessionID = c.id
	ev.ModuleID = c.module.ID
	ev.UserID = c.userID
	c.observer.Observe(ev)
}

func (c *Controller) view() View {
	v := View{
		SessionID:    c.id,
		ModuleID:     c.module.ID,
		State:        c.state,
		Index:        c.index,
		Total:        len(c.questions),
		Answered:     c.ledger.AnsweredCount(),
		Remaining:    c.remaining,
		Violations:   c.monitor.Count(),
		Secure:       c.monitor.IsFullscreen(),
		SubmitFailed: c.lastErr != nil,
		Palette:      make([]bool, len(c.questions)),
	}
	for i, q := range c.questions {
		_, v.Palette[i] = c.ledger.Get(q.ID)
	}
	if c.state == StateActive {
		q := c.questions[c.index]
		v.Question = &q
		if sel, ok := c.ledger.Get(q.ID); ok {
			v.Selected = sel
		}
	}
	return v
}

// minutesTaken rounds elapsed seconds up to whole minutes.
func minutesTaken(elapsed int) int {
	if elapsed <= 0 {
		return 0
	}
	return (elapsed + 59) / 60
}

func ptr[T any](v T) *T { return &v }
