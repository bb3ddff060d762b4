// Package bot wires inbound Telegram events to per-user sessions: the
// Poller long-polls for updates and the Dispatcher authorizes each event
// and routes it to the right session, creating sessions lazily.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/observability"
	"github.com/ironzo/arxiveparser/internal/session"
)

// Event is one inbound user interaction. ChatID is the chat the event
// arrived in; replies go there, which matters in group chats where it
// differs from the sender's UserID.
type Event struct {
	UserID int64
	ChatID int64
	Text   string
}

// Authorizer is the dispatcher-facing slice of the access controller.
type Authorizer interface {
	IsAuthorized(userID int64) bool
	AdminID() int64
}

// SessionFactory creates the state machine for a user on first contact.
type SessionFactory func(userID, chatID int64) *session.Session

// userEntry pairs a session with a mutex serializing that user's events.
// The session's own lock protects its fields; this one additionally keeps
// whole events (including their outbound replies) from interleaving.
type userEntry struct {
	mu      sync.Mutex
	session *session.Session
}

// Dispatcher routes events to sessions. Events for different users are
// handled fully concurrently; events for one user are serialized.
type Dispatcher struct {
	mu       sync.Mutex
	users    map[int64]*userEntry
	factory  SessionFactory
	access   Authorizer
	notifier session.Messenger
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewDispatcher creates a Dispatcher. The notifier is used for replies that
// happen before a session exists (denials).
func NewDispatcher(factory SessionFactory, access Authorizer, notifier session.Messenger, logger zerolog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		users:    make(map[int64]*userEntry),
		factory:  factory,
		access:   access,
		notifier: notifier,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		metrics:  metrics,
	}
}

// HandleEvent authorizes and routes one inbound event.
func (d *Dispatcher) HandleEvent(ctx context.Context, event Event) {
	if !d.access.IsAuthorized(event.UserID) {
		d.logger.Warn().Int64("user_id", event.UserID).Msg("unauthorized access attempt")
		if d.metrics != nil {
			d.metrics.RecordUnauthorized()
		}
		d.notify(ctx, event.ChatID, fmt.Sprintf(
			"🚫 Access denied. Your user ID is %d; contact the administrator if you believe this is an error.",
			event.UserID))
		return
	}

	entry := d.entryFor(event.UserID, event.ChatID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d.route(ctx, entry.session, event)
}

// route parses the event text and invokes the matching session handler.
func (d *Dispatcher) route(ctx context.Context, s *session.Session, event Event) {
	text := strings.TrimSpace(event.Text)
	if !strings.HasPrefix(text, "/") {
		d.recordEvent("text")
		s.HandleText(ctx, event.Text)
		return
	}

	command := parseCommand(text)
	d.recordEvent(command)

	switch command {
	case "/start", "/digest":
		s.HandleStart(ctx)
	case "/cancel":
		s.HandleCancel(ctx)
	case "/help":
		s.HandleHelp(ctx)
	case "/adduser":
		if !d.requireAdmin(ctx, event) {
			return
		}
		s.HandleAdminCommand(ctx, domain.AdminOpAdd)
	case "/removeuser":
		if !d.requireAdmin(ctx, event) {
			return
		}
		s.HandleAdminCommand(ctx, domain.AdminOpRemove)
	case "/listusers":
		if !d.requireAdmin(ctx, event) {
			return
		}
		s.HandleListUsers(ctx)
	default:
		s.HandleUnknownCommand(ctx)
	}
}

// requireAdmin rejects admin commands from anyone but the admin.
func (d *Dispatcher) requireAdmin(ctx context.Context, event Event) bool {
	if event.UserID == d.access.AdminID() {
		return true
	}
	d.logger.Warn().Int64("user_id", event.UserID).Msg("admin command from non-admin")
	d.notify(ctx, event.ChatID, "Only the admin can do that.")
	return false
}

// entryFor returns the user's entry, creating the session on first contact.
func (d *Dispatcher) entryFor(userID, chatID int64) *userEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.users[userID]
	if !ok {
		entry = &userEntry{session: d.factory(userID, chatID)}
		d.users[userID] = entry
		d.logger.Info().Int64("user_id", userID).Msg("created session")
	}
	return entry
}

// notify sends a reply outside any session, logging failures.
func (d *Dispatcher) notify(ctx context.Context, chatID int64, text string) {
	if err := d.notifier.Send(ctx, chatID, text); err != nil {
		d.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}

// recordEvent counts an inbound event by kind.
func (d *Dispatcher) recordEvent(kind string) {
	if d.metrics != nil {
		d.metrics.RecordEvent(kind)
	}
}

// parseCommand extracts the lowercased command token, stripping any
// @botname suffix Telegram appends in group chats.
func parseCommand(text string) string {
	command := strings.Fields(text)[0]
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return strings.ToLower(command)
}
