package realtime

import (
	"strings"

	"github.com/google/uuid"
)

type SSEEvent string

const (
	SSEEventReportCreated SSEEvent = "report_created"
	SSEEventReportUpdated SSEEvent = "report_updated"
	SSEEventReportRemoved SSEEvent = "report_removed"

	SSEEventPanicProgress   SSEEvent = "panic_progress"
	SSEEventPanicDispatched SSEEvent = "panic_dispatched"
	SSEEventPanicResult     SSEEvent = "panic_result"

	SSEEventContactsChanged    SSEEvent = "contacts_changed"
	SSEEventAlertConfigChanged SSEEvent = "alert_config_changed"
	SSEEventAlertHistoryAdded  SSEEvent = "alert_history_added"
)

// ReportsChannel carries every report change to map viewers.
const ReportsChannel = "reports-changes"

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// UserChannel is the private channel shared by all sessions of one user.
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// IsUserChannel reports whether channel belongs to userID.
func IsUserChannel(channel string, userID uuid.UUID) bool {
	return strings.TrimSpace(channel) == UserChannel(userID)
}
