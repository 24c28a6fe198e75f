package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/geo"
	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime"
	"github.com/migralert/migralert-backend/internal/trigger"
)

type PanicConfig struct {
	Hold  time.Duration
	Tick  time.Duration
	Clock trigger.Clock
}

func PanicConfigFromEnv() PanicConfig {
	return PanicConfig{
		Hold: envutil.Millis("PANIC_HOLD_MS", int(trigger.DefaultHold/time.Millisecond)),
		Tick: envutil.Millis("PANIC_TICK_MS", int(trigger.DefaultTick/time.Millisecond)),
	}
}

type PressInput struct {
	Message string     `json:"message"`
	Coords  *geo.Point `json:"coords"`
}

type PanicService interface {
	Press(ctx context.Context, in PressInput) (trigger.Snapshot, error)
	Release(ctx context.Context) (trigger.Snapshot, bool, error)
	State(ctx context.Context) (trigger.Snapshot, error)
	CloseSession(sessionID uuid.UUID)
	Close()
}

type panicSession struct {
	userID  uuid.UUID
	rd      ctxutil.RequestData
	machine *trigger.Machine
	armed   atomic.Bool
	// closing is set under panicService.mu when the session ends mid-dispatch.
	closing bool

	mu    sync.Mutex
	input PressInput
}

type panicService struct {
	log       *logger.Logger
	contacts  ContactService
	alerts    AlertService
	publisher realtime.Publisher
	metrics   *observability.Metrics
	cfg       PanicConfig

	mu       sync.Mutex
	sessions map[uuid.UUID]*panicSession
}

func NewPanicService(
	log *logger.Logger,
	contacts ContactService,
	alerts AlertService,
	publisher realtime.Publisher,
	metrics *observability.Metrics,
	cfg PanicConfig,
) PanicService {
	if cfg.Clock == nil {
		cfg.Clock = trigger.RealClock()
	}
	return &panicService{
		log:       log.With("service", "PanicService"),
		contacts:  contacts,
		alerts:    alerts,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		sessions:  make(map[uuid.UUID]*panicSession),
	}
}

func sessionFromContext(ctx context.Context) (*ctxutil.RequestData, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil || rd.SessionID == uuid.Nil {
		return nil, unauthorizedErr("panic button requires a signed-in session")
	}
	return rd, nil
}

func (ps *panicService) session(rd *ctxutil.RequestData, create bool) *panicSession {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if s, ok := ps.sessions[rd.SessionID]; ok {
		if !s.closing || !create || s.machine.Snapshot().Busy {
			return s
		}
	}
	if !create {
		return nil
	}
	s := &panicSession{userID: rd.UserID, rd: *rd}
	s.machine = trigger.New(trigger.Config{
		Hold:     ps.cfg.Hold,
		Tick:     ps.cfg.Tick,
		Clock:    ps.cfg.Clock,
		Armed:    s.armed.Load,
		Dispatch: func() error { return ps.dispatch(s) },
		OnProgress: func(f float64) {
			ps.emit(s.userID, realtime.SSEEventPanicProgress, map[string]any{"progress": f})
		},
		OnConfirmed: func() {
			ps.metrics.PanicTransition("confirmed")
			ps.emit(s.userID, realtime.SSEEventPanicDispatched, map[string]any{"session_id": rd.SessionID})
		},
		OnDispatchDone: func(error) { ps.forgetClosed(rd.SessionID, s) },
	})
	ps.sessions[rd.SessionID] = s
	return s
}

func (ps *panicService) Press(ctx context.Context, in PressInput) (trigger.Snapshot, error) {
	rd, err := sessionFromContext(ctx)
	if err != nil {
		return trigger.Snapshot{}, err
	}
	has, err := ps.contacts.HasContacts(ctx, rd.UserID)
	if err != nil {
		return trigger.Snapshot{}, err
	}
	s := ps.session(rd, true)
	s.armed.Store(has)
	s.mu.Lock()
	s.input = in
	s.mu.Unlock()

	if err := s.machine.Press(); err != nil {
		ps.metrics.PanicTransition("rejected")
		switch {
		case errors.Is(err, trigger.ErrNotArmed):
			return s.machine.Snapshot(), apierr.New(http.StatusUnprocessableEntity, apierr.CodeNoContacts, err)
		case errors.Is(err, trigger.ErrBusy):
			return s.machine.Snapshot(), apierr.New(http.StatusConflict, apierr.CodeDispatchInProgress, err)
		default:
			return s.machine.Snapshot(), err
		}
	}
	ps.metrics.PanicTransition("press")
	return s.machine.Snapshot(), nil
}

func (ps *panicService) Release(ctx context.Context) (trigger.Snapshot, bool, error) {
	rd, err := sessionFromContext(ctx)
	if err != nil {
		return trigger.Snapshot{}, false, err
	}
	s := ps.session(rd, false)
	if s == nil {
		return trigger.Snapshot{State: trigger.StateIdle}, false, nil
	}
	cancelled := s.machine.Release()
	if cancelled {
		ps.metrics.PanicTransition("release")
		ps.emit(s.userID, realtime.SSEEventPanicProgress, map[string]any{"progress": 0, "cancelled": true})
	}
	return s.machine.Snapshot(), cancelled, nil
}

func (ps *panicService) State(ctx context.Context) (trigger.Snapshot, error) {
	rd, err := sessionFromContext(ctx)
	if err != nil {
		return trigger.Snapshot{}, err
	}
	s := ps.session(rd, false)
	if s == nil {
		return trigger.Snapshot{State: trigger.StateIdle}, nil
	}
	return s.machine.Snapshot(), nil
}

// CloseSession cancels a pending hold for the session. A dispatch already
// in flight completes, and the session keeps rejecting presses until it
// does.
func (ps *panicService) CloseSession(sessionID uuid.UUID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	s, ok := ps.sessions[sessionID]
	if !ok {
		return
	}
	s.machine.Close()
	if s.machine.Snapshot().Busy {
		s.closing = true
		return
	}
	delete(ps.sessions, sessionID)
}

func (ps *panicService) forgetClosed(sessionID uuid.UUID, s *panicSession) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if cur, ok := ps.sessions[sessionID]; ok && cur == s && s.closing {
		delete(ps.sessions, sessionID)
	}
}

func (ps *panicService) Close() {
	ps.mu.Lock()
	sessions := ps.sessions
	ps.sessions = make(map[uuid.UUID]*panicSession)
	ps.mu.Unlock()
	for _, s := range sessions {
		s.machine.Close()
	}
}

func (ps *panicService) dispatch(s *panicSession) error {
	s.mu.Lock()
	in := s.input
	s.mu.Unlock()

	rd := s.rd
	ctx := ctxutil.WithRequestData(context.Background(), &rd)
	res, err := ps.alerts.SendEmergencyAlert(ctx, s.userID, EmergencyAlertInput{Message: in.Message, Coords: in.Coords})
	if err != nil {
		ps.log.Error("Panic dispatch failed", "user_id", s.userID, "error", err)
		payload := map[string]any{"ok": false, "error": err.Error()}
		if ae, ok := apierr.As(err); ok {
			payload["code"] = ae.Code
			payload["retryable"] = ae.Retryable
		}
		ps.emit(s.userID, realtime.SSEEventPanicResult, payload)
		return err
	}
	ps.emit(s.userID, realtime.SSEEventPanicResult, map[string]any{"ok": true, "result": res})
	return nil
}

func (ps *panicService) emit(userID uuid.UUID, event realtime.SSEEvent, data any) {
	if ps.publisher == nil {
		return
	}
	msg := realtime.SSEMessage{Channel: realtime.UserChannel(userID), Event: event, Data: data}
	if err := ps.publisher.Publish(context.Background(), msg); err != nil {
		ps.log.Warn("Publish panic event failed", "error", err, "event", event)
	}
}
