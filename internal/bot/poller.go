package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironzo/arxiveparser/internal/telegram"
)

// UpdateSource produces inbound updates; satisfied by telegram.Client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
}

// Poller long-polls Telegram and feeds the dispatcher. Events within a batch
// are grouped by user: each user's messages are handled sequentially in
// arrival order, while different users proceed in parallel.
type Poller struct {
	source     UpdateSource
	dispatcher *Dispatcher
	retryDelay time.Duration
	logger     zerolog.Logger
}

// NewPoller creates a Poller.
func NewPoller(source UpdateSource, dispatcher *Dispatcher, logger zerolog.Logger) *Poller {
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		retryDelay: 5 * time.Second,
		logger:     logger.With().Str("component", "poller").Logger(),
	}
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64

	for {
		updates, err := p.source.GetUpdates(ctx, offset)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error().Err(err).Msg("polling failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
			continue
		}

		perUser := make(map[int64][]Event)
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			message := update.Message
			if message == nil || message.From == nil {
				continue
			}

			event := Event{
				UserID: message.From.ID,
				ChatID: message.Chat.ID,
				Text:   message.Text,
			}
			perUser[event.UserID] = append(perUser[event.UserID], event)
		}

		var wg sync.WaitGroup
		for _, events := range perUser {
			wg.Add(1)
			go func(events []Event) {
				defer wg.Done()
				for _, event := range events {
					p.dispatcher.HandleEvent(ctx, event)
				}
			}(events)
		}
		wg.Wait()
	}
}
