package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/platform/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(logger.Nop())

	clientA := hub.NewSSEClient(uuid.Nil)
	hub.AddChannel(clientA, ReportsChannel)

	hub.Broadcast(SSEMessage{Channel: ReportsChannel, Event: SSEEventReportCreated, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: ReportsChannel, Event: SSEEventReportUpdated, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventReportCreated {
		t.Fatalf("first event: want=%s got=%s", SSEEventReportCreated, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventReportUpdated {
		t.Fatalf("second event: want=%s got=%s", SSEEventReportUpdated, got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(ReportsChannel); n != 0 {
		t.Fatalf("Subscribers after close: want=0 got=%d", n)
	}

	clientB := hub.NewSSEClient(uuid.Nil)
	hub.AddChannel(clientB, ReportsChannel)
	hub.Broadcast(SSEMessage{Channel: ReportsChannel, Event: SSEEventReportRemoved})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventReportRemoved {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventReportRemoved, got.Event)
	}
}

func TestSSEHubUserChannelIsolation(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	alice, bob := uuid.New(), uuid.New()

	ca := hub.NewSSEClient(alice)
	hub.AddChannel(ca, UserChannel(alice))
	cb := hub.NewSSEClient(bob)
	hub.AddChannel(cb, UserChannel(bob))

	pub := NewLocalPublisher(hub)
	if err := pub.Publish(context.Background(), SSEMessage{Channel: UserChannel(alice), Event: SSEEventPanicProgress}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	recvMessage(t, ca.Outbound, time.Second)
	select {
	case msg := <-cb.Outbound:
		t.Fatalf("bob received alice's event: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
	if !IsUserChannel(UserChannel(alice), alice) || IsUserChannel(UserChannel(alice), bob) {
		t.Fatalf("IsUserChannel mismatch")
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	c := hub.NewSSEClient(uuid.Nil)
	hub.AddChannel(c, ReportsChannel)
	for i := 0; i < defaultOutboundBuffer+10; i++ {
		hub.Broadcast(SSEMessage{Channel: ReportsChannel, Event: SSEEventReportUpdated})
	}
	if len(c.Outbound) != defaultOutboundBuffer {
		t.Fatalf("outbound: want=%d got=%d", defaultOutboundBuffer, len(c.Outbound))
	}
}

func TestSSEHubServeHTTPWritesEvents(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient(uuid.Nil)
	hub.AddChannel(client, ReportsChannel)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeHTTP(w, r, client)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: want=text/event-stream got=%s", ct)
	}

	hub.Broadcast(SSEMessage{Channel: ReportsChannel, Event: SSEEventReportCreated, Data: map[string]any{"id": "r1"}})

	sc := bufio.NewScanner(resp.Body)
	var sawEvent, sawData bool
	for sc.Scan() {
		line := sc.Text()
		if line == "event: report_created" {
			sawEvent = true
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"r1"`) {
			sawData = true
			break
		}
	}
	if !sawEvent || !sawData {
		t.Fatalf("stream: event=%v data=%v", sawEvent, sawData)
	}
}
