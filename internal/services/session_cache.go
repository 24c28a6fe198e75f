package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
)

const defaultSessionCacheTTL = 5 * time.Minute

// SessionCache is a read-through cache of a session's safety data (contacts,
// alert config, recent history). Entries belong to one session, are dropped on
// every mutation by the owning user and removed on logout.
type SessionCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[uuid.UUID]*sessionEntry
}

type sessionEntry struct {
	userID uuid.UUID

	contacts   []*types.EmergencyContact
	contactsAt time.Time

	config   *types.AlertConfig
	configAt time.Time

	history      []*types.AlertHistory
	historyLimit int
	historyAt    time.Time
}

func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = defaultSessionCacheTTL
	}
	return &SessionCache{ttl: ttl, now: time.Now, sessions: make(map[uuid.UUID]*sessionEntry)}
}

// sessionKey returns the caller's session id when it belongs to userID.
func sessionKey(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.SessionID == uuid.Nil || rd.UserID != userID {
		return uuid.Nil, false
	}
	return rd.SessionID, true
}

func (c *SessionCache) entryLocked(sessionID, userID uuid.UUID) *sessionEntry {
	e := c.sessions[sessionID]
	if e == nil || e.userID != userID {
		e = &sessionEntry{userID: userID}
		c.sessions[sessionID] = e
	}
	return e
}

func (c *SessionCache) fresh(at time.Time) bool {
	return !at.IsZero() && c.now().Sub(at) < c.ttl
}

func (c *SessionCache) Contacts(ctx context.Context, userID uuid.UUID) ([]*types.EmergencyContact, bool) {
	if c == nil {
		return nil, false
	}
	sid, ok := sessionKey(ctx, userID)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.sessions[sid]
	if e == nil || e.userID != userID || !c.fresh(e.contactsAt) {
		return nil, false
	}
	return e.contacts, true
}

func (c *SessionCache) StoreContacts(ctx context.Context, userID uuid.UUID, contacts []*types.EmergencyContact) {
	if c == nil {
		return
	}
	sid, ok := sessionKey(ctx, userID)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(sid, userID)
	e.contacts = contacts
	e.contactsAt = c.now()
}

func (c *SessionCache) AlertConfig(ctx context.Context, userID uuid.UUID) (*types.AlertConfig, bool) {
	if c == nil {
		return nil, false
	}
	sid, ok := sessionKey(ctx, userID)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.sessions[sid]
	if e == nil || e.userID != userID || e.config == nil || !c.fresh(e.configAt) {
		return nil, false
	}
	return e.config, true
}

func (c *SessionCache) StoreAlertConfig(ctx context.Context, userID uuid.UUID, cfg *types.AlertConfig) {
	if c == nil || cfg == nil {
		return
	}
	sid, ok := sessionKey(ctx, userID)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(sid, userID)
	e.config = cfg
	e.configAt = c.now()
}

// History serves a cached page when it was loaded with at least limit rows.
func (c *SessionCache) History(ctx context.Context, userID uuid.UUID, limit int) ([]*types.AlertHistory, bool) {
	if c == nil {
		return nil, false
	}
	sid, ok := sessionKey(ctx, userID)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.sessions[sid]
	if e == nil || e.userID != userID || !c.fresh(e.historyAt) || e.historyLimit < limit {
		return nil, false
	}
	if len(e.history) > limit {
		return e.history[:limit], true
	}
	return e.history, true
}

func (c *SessionCache) StoreHistory(ctx context.Context, userID uuid.UUID, limit int, rows []*types.AlertHistory) {
	if c == nil {
		return
	}
	sid, ok := sessionKey(ctx, userID)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(sid, userID)
	e.history = rows
	e.historyLimit = limit
	e.historyAt = c.now()
}

// InvalidateUser drops cached data for every session of userID.
func (c *SessionCache) InvalidateUser(userID uuid.UUID) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for sid, e := range c.sessions {
		if e.userID == userID {
			delete(c.sessions, sid)
		}
	}
}

// Drop forgets a session, typically on logout.
func (c *SessionCache) Drop(sessionID uuid.UUID) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

func (c *SessionCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
