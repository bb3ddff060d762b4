package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/telegram"
)

// scriptedSource serves pre-canned update batches, then blocks until the
// context is canceled.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	errs    []error
	offsets []int64
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return batch, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedSource) seenOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.offsets...)
}

func messageUpdate(updateID, userID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			From: &telegram.User{ID: userID},
			Chat: telegram.Chat{ID: userID},
			Text: text,
		},
	}
}

func runPoller(t *testing.T, source *scriptedSource, d *Dispatcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p := NewPoller(source, d, zerolog.Nop())
		p.retryDelay = time.Millisecond
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("poller did not stop")
		}
	})
	return cancel
}

func waitForMessageCount(t *testing.T, messenger *captureMessenger, userID int64, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		messenger.mu.Lock()
		n := len(messenger.byUID[userID])
		messenger.mu.Unlock()
		if n >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %d never received %d messages", userID, want)
}

func TestPoller_Run(t *testing.T) {
	t.Run("advances the offset past delivered updates", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})
		source := &scriptedSource{batches: [][]telegram.Update{
			{messageUpdate(10, 7, "/help"), messageUpdate(11, 7, "/help")},
			{messageUpdate(12, 8, "/help")},
		}}

		runPoller(t, source, d)
		waitForMessageCount(t, messenger, 7, 2)
		waitForMessageCount(t, messenger, 8, 1)

		offsets := source.seenOffsets()
		require.GreaterOrEqual(t, len(offsets), 3)
		assert.Equal(t, []int64{0, 12, 13}, offsets[:3])
	})

	t.Run("skips updates without a message or sender", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})
		source := &scriptedSource{batches: [][]telegram.Update{
			{
				{UpdateID: 20},
				{UpdateID: 21, Message: &telegram.Message{Text: "no sender"}},
				messageUpdate(22, 7, "/help"),
			},
		}}

		runPoller(t, source, d)
		waitForMessageCount(t, messenger, 7, 1)

		offsets := source.seenOffsets()
		require.GreaterOrEqual(t, len(offsets), 2)
		assert.Equal(t, int64(23), offsets[1], "empty updates still advance the offset")
	})

	t.Run("messages from one user in a batch are handled in order", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})
		source := &scriptedSource{batches: [][]telegram.Update{
			{
				messageUpdate(40, 7, "/digest"),
				messageUpdate(41, 7, "quantum computing"),
			},
		}}

		runPoller(t, source, d)
		waitForMessageCount(t, messenger, 7, 2)

		messenger.mu.Lock()
		msgs := append([]string(nil), messenger.byUID[7]...)
		messenger.mu.Unlock()
		assert.Contains(t, msgs[0], "topic")
		assert.Contains(t, msgs[1], "YYYY.MM.DD")

		d.mu.Lock()
		state := d.users[7].session.State()
		d.mu.Unlock()
		assert.Equal(t, domain.StateAwaitingStartDate, state)
	})

	t.Run("retries after a polling error", func(t *testing.T) {
		d, messenger := newTestDispatcher(t, &stubAuthorizer{})
		source := &scriptedSource{
			errs:    []error{errors.New("telegram: 502")},
			batches: [][]telegram.Update{{messageUpdate(30, 7, "/help")}},
		}

		runPoller(t, source, d)
		waitForMessageCount(t, messenger, 7, 1)

		offsets := source.seenOffsets()
		require.GreaterOrEqual(t, len(offsets), 2)
		assert.Equal(t, int64(0), offsets[1], "offset is unchanged across a failed poll")
	})
}
