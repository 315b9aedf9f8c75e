// Package engine runs battle turns: it selects advisors, sequences their
// generation calls, fuses their output through the arbiter and records every
// step in the session log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/generation"
	"github.com/ashureev/quarrel-labs/internal/media"
	"github.com/ashureev/quarrel-labs/internal/session"
	"github.com/ashureev/quarrel-labs/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FailureMessage is appended as the arbiter's line when a turn fails.
const FailureMessage = "通信中断，作战暂停。"

var (
	// ErrTurnInFlight indicates another turn is running on this engine.
	ErrTurnInFlight = errors.New("a turn is already in progress")
	// ErrEmptyTurn indicates a submission with nothing to answer.
	ErrEmptyTurn = errors.New("scenario and opponent line are required")
	// ErrInvalidTransition indicates a state change the machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Advisor issues one advisor or arbiter generation call.
type Advisor interface {
	Advise(ctx context.Context, req generation.Request) (generation.Result, error)
}

// Selector picks the advisors for an ordinary turn.
type Selector interface {
	Select(ctx context.Context, scenario, opponentLine string) advisor.Selection
}

// ImageAnalyzer runs the vision branch.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, image []byte, note string) (media.Analysis, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Registry   *advisor.Registry
	Selector   Selector
	Advisor    Advisor
	Media      ImageAnalyzer
	Repository store.Repository
	Logger     *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Turn is one user submission.
type Turn struct {
	Scenario     string
	OpponentLine string
	// Image routes the turn through the vision advisor when non-empty.
	Image []byte
	Note  string
}

// TurnOutcome reports what a turn did.
type TurnOutcome struct {
	BattleID string
	// User is the recorded submission.
	User domain.Message
	// Appended holds the messages produced by the turn, excluding User.
	Appended  []domain.Message
	Selection advisor.Selection
	Notice    *Notice
	// Err is the failure that ended the turn, if any.
	Err error
	// PersistErr is set when saving the battle failed.
	PersistErr error
}

// Engine runs turns for one device's live battle. At most one turn runs at a time.
type Engine struct {
	ownerID  string
	session  *session.State
	registry *advisor.Registry
	selector Selector
	advisor  Advisor
	media    ImageAnalyzer
	repo     store.Repository
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu         sync.Mutex
	state      State
	lastActive time.Time

	observers observers
}

// New creates an idle engine for ownerID.
func New(ownerID string, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		ownerID:    ownerID,
		session:    session.NewWithClock(ownerID, now),
		registry:   deps.Registry,
		selector:   deps.Selector,
		advisor:    deps.Advisor,
		media:      deps.Media,
		repo:       deps.Repository,
		logger:     logger.With("owner_id", ownerID),
		tracer:     otel.Tracer("github.com/ashureev/quarrel-labs/internal/engine"),
		now:        now,
		state:      StateIdle,
		lastActive: now(),
	}
}

// Subscribe registers fn for turn events and returns a function removing it.
func (e *Engine) Subscribe(fn Observer) func() {
	return e.observers.subscribe(fn)
}

// State returns the current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Battle returns a deep copy of the live battle.
func (e *Engine) Battle() domain.Battle {
	return e.session.Battle()
}

// Reset starts a new empty battle. It fails while a turn is running.
func (e *Engine) Reset() error {
	return e.whileIdle(func() {
		e.session.Reset()
	})
}

// Load replaces the live battle with b. It fails while a turn is running.
func (e *Engine) Load(b domain.Battle) error {
	return e.whileIdle(func() {
		e.session.Replace(b)
	})
}

// IdleSince returns when the engine last finished work, and false while a
// turn is running.
func (e *Engine) IdleSince() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive, e.state == StateIdle
}

func (e *Engine) whileIdle(fn func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return ErrTurnInFlight
	}
	fn()
	e.lastActive = e.now()
	return nil
}

func (e *Engine) begin(first State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return ErrTurnInFlight
	}
	e.state = first
	return nil
}

func (e *Engine) transition(to State) {
	e.mu.Lock()
	from := e.state
	if !canTransition(from, to) {
		e.mu.Unlock()
		// Programming error; the turn keeps its current state.
		e.logger.Error("rejected state transition", "from", from, "to", to, "error", ErrInvalidTransition)
		return
	}
	e.state = to
	if to == StateIdle {
		e.lastActive = e.now()
	}
	e.mu.Unlock()
	e.emit(Event{Type: EventState, State: to})
}

func (e *Engine) emit(ev Event) {
	ev.OwnerID = e.ownerID
	if ev.BattleID == "" {
		ev.BattleID = e.session.BattleID()
	}
	ev.At = e.now()
	e.observers.emit(ev)
}

// RunTurn records the submission and runs it to completion. It returns an
// error only when the turn could not start; failures during the turn are
// reported in TurnOutcome.Err after the battle has been saved.
func (e *Engine) RunTurn(ctx context.Context, t Turn) (TurnOutcome, error) {
	t.Scenario = strings.TrimSpace(t.Scenario)
	t.OpponentLine = strings.TrimSpace(t.OpponentLine)
	vision := len(t.Image) > 0
	if !vision && (t.Scenario == "" || t.OpponentLine == "") {
		return TurnOutcome{}, ErrEmptyTurn
	}

	first := StateSelecting
	if vision {
		first = StateVisionBranch
	}
	if err := e.begin(first); err != nil {
		return TurnOutcome{}, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.turn", trace.WithAttributes(
		attribute.String("battle.id", e.session.BattleID()),
		attribute.Bool("turn.vision", vision),
	))
	defer span.End()

	e.emit(Event{Type: EventState, State: first})

	if t.Scenario != "" {
		e.session.SetScenario(t.Scenario)
	}
	out := TurnOutcome{BattleID: e.session.BattleID()}

	user := domain.Message{Speaker: domain.UserSpeaker, Body: userBody(t)}
	if vision {
		user.Attachment = &domain.Attachment{Data: t.Image}
		if mt, err := media.DetectImageType(t.Image); err == nil {
			user.Attachment.MIMEType = mt
		}
	}
	recorded, err := e.session.Append(user)
	if err != nil {
		out.Err = fmt.Errorf("record submission: %w", err)
		e.fail(ctx, &out)
		return out, nil
	}
	out.User = recorded
	e.emit(Event{Type: EventMessage, Message: &recorded})

	if vision {
		err = e.runVision(ctx, t, &out)
	} else {
		err = e.runAdvisors(ctx, t, &out)
	}
	if err != nil {
		out.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		e.fail(ctx, &out)
		return out, nil
	}

	e.transition(StateComplete)
	out.PersistErr = e.persist(ctx)
	e.transition(StateIdle)
	e.logger.Info("Turn complete",
		"battle_id", out.BattleID,
		"selection", out.Selection.Strings(),
		"appended", len(out.Appended))
	return out, nil
}

func userBody(t Turn) string {
	if len(t.Image) > 0 && t.Scenario == "" && t.OpponentLine == "" {
		if note := strings.TrimSpace(t.Note); note != "" {
			return note
		}
		return "【图片】"
	}
	return "【情景】: " + t.Scenario + "\n【对方】: " + t.OpponentLine
}

func (e *Engine) runVision(ctx context.Context, t Turn, out *TurnOutcome) error {
	e.emit(Event{Type: EventThinking, Advisor: advisor.Vision})
	analysis, err := e.media.Analyze(ctx, t.Image, t.Note)
	if err != nil {
		return err
	}
	_, err = e.record(out, domain.Message{
		Speaker:    advisor.Vision.String(),
		Body:       analysis.Description,
		Attachment: analysis.Transformed,
	})
	return err
}

func (e *Engine) runAdvisors(ctx context.Context, t Turn, out *TurnOutcome) error {
	scenario := e.session.Scenario()
	out.Selection = e.selector.Select(ctx, scenario, t.OpponentLine)
	e.transition(StateAdvisingLoop)

	labels := e.registry.Labels()
	var peer strings.Builder
	for _, id := range out.Selection {
		profile := e.registry.Profile(id)
		e.emit(Event{Type: EventThinking, Advisor: id})
		res, err := e.advisor.Advise(ctx, generation.Request{
			Persona:      profile.Persona,
			Scenario:     scenario,
			OpponentLine: t.OpponentLine,
			History:      e.session.Recent(generation.HistoryWindow),
			Labels:       labels,
		})
		if err != nil {
			return fmt.Errorf("advisor %s: %w", id, err)
		}
		msg, err := e.record(out, domain.Message{Speaker: id.String(), Body: res.Text})
		if err != nil {
			return err
		}
		if peer.Len() > 0 {
			peer.WriteString("\n\n")
		}
		peer.WriteString("【" + profile.DisplayName + "】\n" + msg.Body)
	}

	e.transition(StateArbitrating)
	e.emit(Event{Type: EventThinking, Advisor: advisor.Arbiter})
	res, err := e.advisor.Advise(ctx, generation.Request{
		Persona:      e.registry.Profile(advisor.Arbiter).Persona,
		Scenario:     scenario,
		OpponentLine: t.OpponentLine,
		History:      e.session.Recent(generation.HistoryWindow),
		PeerContext:  peer.String(),
		Labels:       labels,
	})
	if err != nil {
		return fmt.Errorf("advisor %s: %w", advisor.Arbiter, err)
	}
	_, err = e.record(out, domain.Message{Speaker: advisor.Arbiter.String(), Body: res.Text})
	return err
}

func (e *Engine) record(out *TurnOutcome, msg domain.Message) (domain.Message, error) {
	stored, err := e.session.Append(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("record %s message: %w", msg.Speaker, err)
	}
	out.Appended = append(out.Appended, stored)
	id, _ := advisor.ParseID(stored.Speaker)
	e.emit(Event{Type: EventMessage, Advisor: id, Message: &stored})
	return stored, nil
}

// fail moves the turn to Failed, appends the disruption message, notifies
// observers and saves what the turn produced.
func (e *Engine) fail(ctx context.Context, out *TurnOutcome) {
	e.transition(StateFailed)

	kind := NoticeInterrupted
	if generation.IsQuotaExhausted(out.Err) {
		kind = NoticeOverloaded
	}
	out.Notice = newNotice(kind)
	e.logger.Warn("Turn failed",
		"battle_id", out.BattleID,
		"notice", kind,
		"error", out.Err)

	if _, err := e.record(out, domain.Message{Speaker: advisor.Arbiter.String(), Body: FailureMessage}); err != nil {
		e.logger.Error("failed to record disruption message", "battle_id", out.BattleID, "error", err)
	}
	e.emit(Event{Type: EventNotice, Notice: out.Notice})

	out.PersistErr = e.persist(ctx)
	e.transition(StateIdle)
}

func (e *Engine) persist(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	battle := e.session.Battle()
	if len(battle.Messages) == 0 {
		return nil
	}
	// The turn finishes even if the caller went away.
	ctx = context.WithoutCancel(ctx)
	if err := e.repo.SaveBattle(ctx, &battle); err != nil {
		e.logger.Error("failed to save battle", "battle_id", battle.ID, "error", err)
		return fmt.Errorf("save battle: %w", err)
	}
	return nil
}
