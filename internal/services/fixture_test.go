package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migralert/migralert-backend/internal/clients/mapbox"
	"github.com/migralert/migralert-backend/internal/clients/twilio"
	"github.com/migralert/migralert-backend/internal/data/repos"
	"github.com/migralert/migralert-backend/internal/data/repos/testutil"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
	"github.com/migralert/migralert-backend/internal/platform/gcp"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime"
	"github.com/migralert/migralert-backend/internal/scoring"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
	ch   chan realtime.SSEMessage
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{ch: make(chan realtime.SSEMessage, 512)}
}

func (p *recordingPublisher) Publish(_ context.Context, msg realtime.SSEMessage) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
	select {
	case p.ch <- msg:
	default:
	}
	return nil
}

func (p *recordingPublisher) events(channel string) []realtime.SSEEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.SSEEvent
	for _, m := range p.msgs {
		if m.Channel == channel {
			out = append(out, m.Event)
		}
	}
	return out
}

// waitFor blocks until an event of the given type arrives.
func (p *recordingPublisher) waitFor(t *testing.T, event realtime.SSEEvent) realtime.SSEMessage {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case m := <-p.ch:
			if m.Event == event {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

type sentSMS struct {
	To   string
	Body string
}

type fakeSMS struct {
	mu     sync.Mutex
	sent   []sentSMS
	failTo map[string]error
	ctxErr []error
}

func (f *fakeSMS) SendMessage(ctx context.Context, req twilio.SendMessageRequest) (*twilio.Message, error) {
	return f.SendSMS(ctx, req.To, req.Body)
}

func (f *fakeSMS) SendSMS(ctx context.Context, to string, body string) (*twilio.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = append(f.ctxErr, ctx.Err())
	if err := f.failTo[to]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, sentSMS{To: to, Body: body})
	return &twilio.Message{SID: "SM" + uuid.NewString(), To: to, Body: body, Status: "queued"}, nil
}

func (f *fakeSMS) Sent() []sentSMS {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSMS(nil), f.sent...)
}

type geocoderFunc func(ctx context.Context, lat, lng float64) (mapbox.Place, error)

func (f geocoderFunc) Reverse(ctx context.Context, lat, lng float64) (mapbox.Place, error) {
	return f(ctx, lat, lng)
}

type fixture struct {
	db     *gorm.DB
	log    *logger.Logger
	bucket *gcp.MemoryBucketService
	pub    *recordingPublisher
	sms    *fakeSMS
	cache  *SessionCache

	userRepo        repos.UserRepo
	userTokenRepo   repos.UserTokenRepo
	reportRepo      repos.ReportRepo
	interactionRepo repos.ReportInteractionRepo
	contactRepo     repos.EmergencyContactRepo
	configRepo      repos.AlertConfigRepo
	historyRepo     repos.AlertHistoryRepo
	feedbackRepo    repos.FeedbackRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return &fixture{
		db:              db,
		log:             log,
		bucket:          gcp.NewMemoryBucketService(log, "http://media.test"),
		pub:             newRecordingPublisher(),
		sms:             &fakeSMS{failTo: map[string]error{}},
		cache:           NewSessionCache(time.Minute),
		userRepo:        repos.NewUserRepo(db, log),
		userTokenRepo:   repos.NewUserTokenRepo(db, log),
		reportRepo:      repos.NewReportRepo(db, log),
		interactionRepo: repos.NewReportInteractionRepo(db, log),
		contactRepo:     repos.NewEmergencyContactRepo(db, log),
		configRepo:      repos.NewAlertConfigRepo(db, log),
		historyRepo:     repos.NewAlertHistoryRepo(db, log),
		feedbackRepo:    repos.NewFeedbackRepo(db, log),
	}
}

func (f *fixture) reportService(geocoder mapbox.Geocoder) ReportService {
	return NewReportService(f.db, f.log, f.reportRepo, f.interactionRepo, scoring.Default(),
		geocoder, f.bucket, nil, f.pub, nil, ReportConfig{TTL: 12 * time.Hour, GeocodeTimeout: time.Second, CompressTimeout: 5 * time.Second, ActorSalt: "salt"})
}

func (f *fixture) contactService() ContactService {
	return NewContactService(f.db, f.log, f.contactRepo, f.configRepo, f.historyRepo, f.cache, f.pub)
}

func (f *fixture) alertService(contacts ContactService) AlertService {
	return NewAlertService(f.log, contacts, f.userRepo, f.historyRepo, f.sms, f.cache, f.pub, nil, DispatchConfig{FanoutLimit: 5, DispatchTimeout: 5 * time.Second})
}

func sessionCtx(userID uuid.UUID, role string) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{
		UserID:    userID,
		SessionID: uuid.New(),
		Role:      role,
		ClientIP:  "203.0.113.7",
	})
}

func wantCode(t *testing.T, err error, code string) *apierr.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("want error code %s, got nil", code)
	}
	ae, ok := apierr.As(err)
	if !ok {
		t.Fatalf("want apierr with code %s, got %T: %v", code, err, err)
	}
	if ae.Code != code {
		t.Fatalf("error code: want=%s got=%s (%v)", code, ae.Code, err)
	}
	return ae
}

var errTransport = errors.New("twilio: 503 service unavailable")

func sessionIDOf(ctx context.Context) uuid.UUID {
	return ctxutil.GetRequestData(ctx).SessionID
}
