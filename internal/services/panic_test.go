package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/realtime"
	"github.com/migralert/migralert-backend/internal/trigger"
	"github.com/migralert/migralert-backend/internal/trigger/triggertest"
)

const testHold = 3 * time.Second

type blockingAlerts struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAlerts) SendEmergencyAlert(context.Context, uuid.UUID, EmergencyAlertInput) (*DispatchResult, error) {
	b.started <- struct{}{}
	<-b.release
	return &DispatchResult{Attempted: 1, SuccessCount: 1}, nil
}

func (b *blockingAlerts) SendTestAlert(context.Context, uuid.UUID, string) (*DispatchResult, error) {
	return nil, nil
}

func (f *fixture) panicService(alerts AlertService, clock *triggertest.FakeClock) PanicService {
	return NewPanicService(f.log, f.contactService(), alerts, f.pub, nil, PanicConfig{Hold: testHold, Tick: 50 * time.Millisecond, Clock: clock})
}

func TestPanicRequiresSession(t *testing.T) {
	f := newFixture(t)
	svc := f.panicService(f.alertService(f.contactService()), triggertest.NewFakeClock())
	defer svc.Close()
	_, err := svc.Press(context.Background(), PressInput{})
	wantCode(t, err, apierr.CodeUnauthorized)
}

func TestPanicWithoutContactsIsNotArmed(t *testing.T) {
	f := newFixture(t)
	clock := triggertest.NewFakeClock()
	svc := f.panicService(f.alertService(f.contactService()), clock)
	defer svc.Close()

	snap, err := svc.Press(sessionCtx(uuid.New(), "user"), PressInput{})
	wantCode(t, err, apierr.CodeNoContacts)
	if snap.State != trigger.StateIdle || clock.PendingTimers() != 0 {
		t.Fatalf("unarmed press must not start a hold: state=%s timers=%d", snap.State, clock.PendingTimers())
	}
}

func TestPanicHoldDispatchesAlert(t *testing.T) {
	f := newFixture(t)
	clock := triggertest.NewFakeClock()
	svc := f.panicService(f.alertService(f.contactService()), clock)
	defer svc.Close()
	uid := uuid.New()
	seedContacts(t, f, uid, "+14155550100", "+14155550101")
	ctx := sessionCtx(uid, "user")

	snap, err := svc.Press(ctx, PressInput{Message: "held"})
	if err != nil {
		t.Fatalf("Press: %v", err)
	}
	if snap.State != trigger.StatePressing {
		t.Fatalf("state after press: want pressing got=%s", snap.State)
	}

	clock.Advance(testHold)
	f.pub.waitFor(t, realtime.SSEEventPanicDispatched)
	result := f.pub.waitFor(t, realtime.SSEEventPanicResult)
	payload, ok := result.Data.(map[string]any)
	if !ok || payload["ok"] != true {
		t.Fatalf("panic result: got=%v", result.Data)
	}
	if result.Channel != realtime.UserChannel(uid) {
		t.Fatalf("panic events go to the user channel, got %s", result.Channel)
	}
	sent := f.sms.Sent()
	if len(sent) != 2 || sent[0].Body != EmergencyBody("held", nil) {
		t.Fatalf("sent: got=%+v", sent)
	}
}

func TestPanicReleaseBeforeHoldCancels(t *testing.T) {
	f := newFixture(t)
	clock := triggertest.NewFakeClock()
	svc := f.panicService(f.alertService(f.contactService()), clock)
	defer svc.Close()
	uid := uuid.New()
	seedContacts(t, f, uid, "+14155550100")
	ctx := sessionCtx(uid, "user")

	if _, err := svc.Press(ctx, PressInput{}); err != nil {
		t.Fatalf("Press: %v", err)
	}
	clock.Advance(testHold / 2)
	snap, cancelled, err := svc.Release(ctx)
	if err != nil || !cancelled {
		t.Fatalf("Release: cancelled=%v err=%v", cancelled, err)
	}
	if snap.State != trigger.StateIdle || snap.Progress != 0 {
		t.Fatalf("snapshot after release: got=%+v", snap)
	}
	clock.Advance(testHold)
	if len(f.sms.Sent()) != 0 {
		t.Fatalf("released hold must not send")
	}

	// Releasing again, or with no session state at all, is harmless.
	if _, cancelled, _ := svc.Release(ctx); cancelled {
		t.Fatalf("second release reported a cancel")
	}
	if _, cancelled, _ := svc.Release(sessionCtx(uid, "user")); cancelled {
		t.Fatalf("release on a fresh session reported a cancel")
	}
}

func TestPanicPressWhileDispatchingIsRejected(t *testing.T) {
	f := newFixture(t)
	clock := triggertest.NewFakeClock()
	alerts := &blockingAlerts{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := f.panicService(alerts, clock)
	defer svc.Close()
	uid := uuid.New()
	seedContacts(t, f, uid, "+14155550100")
	ctx := sessionCtx(uid, "user")

	if _, err := svc.Press(ctx, PressInput{}); err != nil {
		t.Fatalf("Press: %v", err)
	}
	clock.Advance(testHold)
	select {
	case <-alerts.started:
	case <-time.After(3 * time.Second):
		t.Fatalf("dispatch never started")
	}

	snap, err := svc.State(ctx)
	if err != nil || !snap.Busy {
		t.Fatalf("state while dispatching: busy=%v err=%v", snap.Busy, err)
	}
	_, err = svc.Press(ctx, PressInput{})
	wantCode(t, err, apierr.CodeDispatchInProgress)

	close(alerts.release)
	f.pub.waitFor(t, realtime.SSEEventPanicResult)
}

func TestPanicCloseSessionCancelsHold(t *testing.T) {
	f := newFixture(t)
	clock := triggertest.NewFakeClock()
	svc := f.panicService(f.alertService(f.contactService()), clock)
	defer svc.Close()
	uid := uuid.New()
	seedContacts(t, f, uid, "+14155550100")
	ctx := sessionCtx(uid, "user")

	if _, err := svc.Press(ctx, PressInput{}); err != nil {
		t.Fatalf("Press: %v", err)
	}
	svc.CloseSession(sessionIDOf(ctx))
	if clock.PendingTimers() != 0 {
		t.Fatalf("pending timers after close: %d", clock.PendingTimers())
	}
	clock.Advance(2 * testHold)
	if len(f.sms.Sent()) != 0 {
		t.Fatalf("closed session must not dispatch")
	}
	snap, err := svc.State(ctx)
	if err != nil || snap.State != trigger.StateIdle {
		t.Fatalf("state after close: got=%+v err=%v", snap, err)
	}
}

func TestPanicClosedSessionKeepsRejectingUntilDispatchReturns(t *testing.T) {
	f := newFixture(t)
	clock := triggertest.NewFakeClock()
	alerts := &blockingAlerts{started: make(chan struct{}, 2), release: make(chan struct{})}
	svc := f.panicService(alerts, clock)
	defer svc.Close()
	uid := uuid.New()
	seedContacts(t, f, uid, "+14155550100")
	ctx := sessionCtx(uid, "user")

	if _, err := svc.Press(ctx, PressInput{}); err != nil {
		t.Fatalf("Press: %v", err)
	}
	clock.Advance(testHold)
	select {
	case <-alerts.started:
	case <-time.After(3 * time.Second):
		t.Fatalf("dispatch never started")
	}

	// The stream drops while the alert is still going out.
	svc.CloseSession(sessionIDOf(ctx))

	_, err := svc.Press(ctx, PressInput{})
	wantCode(t, err, apierr.CodeDispatchInProgress)
	snap, err := svc.State(ctx)
	if err != nil || !snap.Busy {
		t.Fatalf("state after close mid-dispatch: busy=%v err=%v", snap.Busy, err)
	}
	clock.Advance(2 * testHold)
	select {
	case <-alerts.started:
		t.Fatalf("second dispatch started while the first was in flight")
	default:
	}

	close(alerts.release)
	f.pub.waitFor(t, realtime.SSEEventPanicResult)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := svc.Press(ctx, PressInput{})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("press after dispatch returned: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}
