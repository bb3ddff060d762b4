package bot

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/session"
)

const testAdminID int64 = 100

// captureMessenger records outbound texts per user.
type captureMessenger struct {
	mu    sync.Mutex
	byUID map[int64][]string
}

func newCaptureMessenger() *captureMessenger {
	return &captureMessenger{byUID: make(map[int64][]string)}
}

func (m *captureMessenger) Send(ctx context.Context, userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUID[userID] = append(m.byUID[userID], text)
	return nil
}

func (m *captureMessenger) lastFor(t *testing.T, userID int64) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.byUID[userID]
	require.NotEmpty(t, msgs, "no messages for user %d", userID)
	return msgs[len(msgs)-1]
}

// openAccess authorizes everyone; denyAll only the admin.
type stubAuthorizer struct {
	denyAll bool
}

func (a *stubAuthorizer) IsAuthorized(userID int64) bool {
	if a.denyAll {
		return userID == testAdminID
	}
	return true
}

func (a *stubAuthorizer) AdminID() int64 { return testAdminID }

type noopPlanner struct{}

func (noopPlanner) BuildQuery(ctx context.Context, topic string) string { return "all:x" }

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, topic, query string, dateRange domain.DateRange) (*domain.Digest, error) {
	return &domain.Digest{Topic: topic}, nil
}

type noopAccessManager struct{}

func (noopAccessManager) AddUser(requesterID, targetID int64) error    { return nil }
func (noopAccessManager) RemoveUser(requesterID, targetID int64) error { return nil }
func (noopAccessManager) ListUsers(requesterID int64) ([]int64, error) { return nil, nil }

func newTestDispatcher(t *testing.T, auth *stubAuthorizer) (*Dispatcher, *captureMessenger) {
	t.Helper()
	messenger := newCaptureMessenger()
	factory := func(userID, chatID int64) *session.Session {
		return session.New(context.Background(), userID, chatID, noopPlanner{}, noopRunner{}, messenger, noopAccessManager{}, zerolog.Nop(), nil)
	}
	d := NewDispatcher(factory, auth, messenger, zerolog.Nop(), nil)
	return d, messenger
}

func TestDispatcher_HandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthorized user is denied without a session", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{denyAll: true})

		d.HandleEvent(ctx, Event{UserID: 999, ChatID: 999, Text: "/digest"})

		assert.Contains(t, messenger.lastFor(t, 999), "Access denied")
		assert.Contains(t, messenger.lastFor(t, 999), "999")
		assert.Empty(t, d.users, "no session is created for denied users")
	})

	t.Run("digest command starts the conversation", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})

		d.HandleEvent(ctx, Event{UserID: 7, ChatID: 7, Text: "/digest"})

		assert.Contains(t, messenger.lastFor(t, 7), "topic")
	})

	t.Run("free text is routed to the session state machine", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})

		d.HandleEvent(ctx, Event{UserID: 7, ChatID: 7, Text: "/digest"})
		d.HandleEvent(ctx, Event{UserID: 7, ChatID: 7, Text: "graph neural networks"})

		assert.Contains(t, messenger.lastFor(t, 7), "YYYY.MM.DD")
	})

	t.Run("unknown command acknowledged with help", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})

		d.HandleEvent(ctx, Event{UserID: 7, ChatID: 7, Text: "/frobnicate"})

		assert.Contains(t, messenger.lastFor(t, 7), "/digest")
	})

	t.Run("admin command from non-admin is denied", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})

		d.HandleEvent(ctx, Event{UserID: 7, ChatID: 7, Text: "/adduser"})

		assert.Contains(t, messenger.lastFor(t, 7), "admin")
	})

	t.Run("admin command from admin starts the pending op", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})

		d.HandleEvent(ctx, Event{UserID: testAdminID, ChatID: testAdminID, Text: "/adduser"})

		assert.Contains(t, messenger.lastFor(t, testAdminID), "user ID")
	})

	t.Run("replies go to the originating chat, not the sender", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})

		d.HandleEvent(ctx, Event{UserID: 7, ChatID: -5001, Text: "/digest"})

		assert.Contains(t, messenger.lastFor(t, -5001), "topic")
		_, repliedToSender := messenger.byUID[7]
		assert.False(t, repliedToSender, "reply must target the chat ID")
	})

	t.Run("sessions are created lazily and reused", func(t *testing.T) {
		d, _ := newTestDispatcher(t, &stubAuthorizer{})

		d.HandleEvent(ctx, Event{UserID: 7, ChatID: 7, Text: "/help"})
		first := d.users[7].session
		d.HandleEvent(ctx, Event{UserID: 7, ChatID: 7, Text: "/help"})

		assert.Same(t, first, d.users[7].session)
		assert.Len(t, d.users, 1)
	})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/digest", "/digest"},
		{"/DIGEST", "/digest"},
		{"/digest@my_bot", "/digest"},
		{"/cancel some trailing words", "/cancel"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseCommand(tt.in), tt.in)
	}
}
