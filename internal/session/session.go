// Package session implements the per-user conversational state machine.
//
// Each user owns one Session that walks IDLE -> AWAITING_TOPIC ->
// AWAITING_START_DATE -> AWAITING_END_DATE -> PROCESSING -> IDLE. All
// event handling for a session is serialized through its mutex; the digest
// run itself happens on a separate goroutine so other users stay responsive.
// A run-generation counter lets /cancel discard the results of an in-flight
// run instead of delivering them to a session that already left PROCESSING.
package session

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/observability"
)

// datePattern is the only accepted date input format: YYYY.MM.DD.
var datePattern = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}$`)

// dateLayout is the Go layout matching datePattern.
const dateLayout = "2006.01.02"

// QueryBuilder turns a topic into a search query. It never fails outward.
type QueryBuilder interface {
	BuildQuery(ctx context.Context, topic string) string
}

// DigestRunner executes one paper-processing run.
type DigestRunner interface {
	Run(ctx context.Context, topic, query string, dateRange domain.DateRange) (*domain.Digest, error)
}

// Messenger delivers outbound messages, chunking long texts as needed.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// AccessManager is the admin-facing slice of the access controller.
type AccessManager interface {
	AddUser(requesterID, targetID int64) error
	RemoveUser(requesterID, targetID int64) error
	ListUsers(requesterID int64) ([]int64, error)
}

// Session is one user's conversational state machine.
type Session struct {
	userID int64
	// chatID is the reply target; it differs from userID in group chats.
	chatID int64

	mu             sync.Mutex
	state          domain.SessionState
	topic          string
	startDate      time.Time
	endDate        time.Time
	pendingAdminOp domain.AdminOp

	// generation increments on every cancel and run start; a finished run
	// only delivers its digest if the generation is unchanged.
	generation uint64

	planner   QueryBuilder
	pipeline  DigestRunner
	messenger Messenger
	access    AccessManager

	// runCtx outlives individual inbound events so a digest run is not
	// torn down when its triggering event finishes.
	runCtx  context.Context
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates an idle Session for the user. runCtx should be the process
// lifetime context; canceling it aborts in-flight runs on shutdown.
func New(runCtx context.Context, userID, chatID int64, planner QueryBuilder, pipeline DigestRunner, messenger Messenger, access AccessManager, logger zerolog.Logger, metrics *observability.Metrics) *Session {
	return &Session{
		userID:    userID,
		chatID:    chatID,
		state:     domain.StateIdle,
		planner:   planner,
		pipeline:  pipeline,
		messenger: messenger,
		access:    access,
		runCtx:    runCtx,
		logger:    logger.With().Int64("user_id", userID).Str("component", "session").Logger(),
		metrics:   metrics,
	}
}

// State returns the current state. Intended for tests and introspection.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleStart begins a new digest conversation.
func (s *Session) HandleStart(ctx context.Context) {
	s.mu.Lock()
	if s.state == domain.StateProcessing {
		s.mu.Unlock()
		s.send(ctx, msgBusy)
		return
	}
	s.resetLocked()
	s.state = domain.StateAwaitingTopic
	s.mu.Unlock()

	s.send(ctx, msgAskTopic)
}

// HandleCancel returns the session to IDLE from any state, clearing all
// pending fields. An in-flight run is not forcibly aborted; bumping the
// generation makes its eventual result be discarded instead of delivered.
func (s *Session) HandleCancel(ctx context.Context) {
	s.mu.Lock()
	if s.state == domain.StateIdle {
		s.mu.Unlock()
		s.send(ctx, msgNothingToCancel)
		return
	}
	wasProcessing := s.state == domain.StateProcessing
	s.generation++
	s.resetLocked()
	s.state = domain.StateIdle
	s.mu.Unlock()

	if wasProcessing {
		s.send(ctx, msgCancelledProcessing)
	} else {
		s.send(ctx, msgCancelled)
	}
}

// HandleHelp responds with usage information without changing state.
func (s *Session) HandleHelp(ctx context.Context) {
	s.send(ctx, msgHelp)
}

// HandleUnknownCommand acknowledges an unrecognized command without
// changing state.
func (s *Session) HandleUnknownCommand(ctx context.Context) {
	s.mu.Lock()
	busy := s.state == domain.StateProcessing
	s.mu.Unlock()

	if busy {
		s.send(ctx, msgBusy)
		return
	}
	s.send(ctx, msgUnknownCommand)
}

// HandleText routes a free-text reply according to the current state.
func (s *Session) HandleText(ctx context.Context, text string) {
	s.mu.Lock()

	if s.pendingAdminOp != domain.AdminOpNone {
		op := s.pendingAdminOp
		s.pendingAdminOp = domain.AdminOpNone
		s.mu.Unlock()
		s.completeAdminOp(ctx, op, text)
		return
	}

	switch s.state {
	case domain.StateIdle:
		s.mu.Unlock()
		s.send(ctx, msgIdleHint)

	case domain.StateAwaitingTopic:
		s.topic = domain.NormalizeWhitespace(text)
		if s.topic == "" {
			s.mu.Unlock()
			s.send(ctx, msgEmptyTopic)
			return
		}
		s.state = domain.StateAwaitingStartDate
		s.mu.Unlock()
		s.send(ctx, msgAskStartDate)

	case domain.StateAwaitingStartDate:
		date, err := parseDate(text)
		if err != nil {
			s.mu.Unlock()
			s.send(ctx, msgBadDateFormat)
			return
		}
		s.startDate = date
		s.state = domain.StateAwaitingEndDate
		s.mu.Unlock()
		s.send(ctx, msgAskEndDate)

	case domain.StateAwaitingEndDate:
		date, err := parseDate(text)
		if err != nil {
			s.mu.Unlock()
			s.send(ctx, msgBadDateFormat)
			return
		}
		if date.Before(s.startDate) {
			s.mu.Unlock()
			s.send(ctx, msgBadDateRange)
			return
		}
		s.endDate = date
		s.state = domain.StateProcessing
		s.generation++
		gen := s.generation
		topic := s.topic
		dateRange := domain.DateRange{From: s.startDate, To: s.endDate}
		s.mu.Unlock()

		s.send(ctx, fmt.Sprintf(msgProcessing, topic, dateRange.String()))
		go s.runDigest(gen, topic, dateRange)

	case domain.StateProcessing:
		s.mu.Unlock()
		s.send(ctx, msgBusy)

	default:
		s.mu.Unlock()
	}
}

// HandleAdminCommand starts or executes an admin operation. The dispatcher
// has already verified the caller is the admin.
func (s *Session) HandleAdminCommand(ctx context.Context, op domain.AdminOp) {
	s.mu.Lock()
	if s.state == domain.StateProcessing {
		s.mu.Unlock()
		s.send(ctx, msgBusy)
		return
	}
	s.pendingAdminOp = op
	s.mu.Unlock()

	switch op {
	case domain.AdminOpAdd:
		s.send(ctx, msgAskUserIDAdd)
	case domain.AdminOpRemove:
		s.send(ctx, msgAskUserIDRemove)
	}
}

// HandleListUsers replies with the current allow-list. The dispatcher has
// already verified the caller is the admin.
func (s *Session) HandleListUsers(ctx context.Context) {
	users, err := s.access.ListUsers(s.userID)
	if err != nil {
		s.send(ctx, msgAdminDenied)
		return
	}
	if len(users) == 0 {
		s.send(ctx, msgAllowListEmpty)
		return
	}

	text := "Authorized users:\n"
	for _, id := range users {
		text += strconv.FormatInt(id, 10) + "\n"
	}
	s.send(ctx, text)
}

// completeAdminOp applies a pending add or remove using the given text as
// the target user ID.
func (s *Session) completeAdminOp(ctx context.Context, op domain.AdminOp, text string) {
	targetID, err := strconv.ParseInt(domain.NormalizeWhitespace(text), 10, 64)
	if err != nil {
		s.send(ctx, msgBadUserID)
		return
	}

	switch op {
	case domain.AdminOpAdd:
		err = s.access.AddUser(s.userID, targetID)
	case domain.AdminOpRemove:
		err = s.access.RemoveUser(s.userID, targetID)
	}

	switch {
	case err == nil:
		s.send(ctx, fmt.Sprintf(msgAdminOpDone, op.String(), targetID))
	default:
		s.send(ctx, adminErrorMessage(err))
	}
}

// runDigest executes the planner and pipeline for one run and delivers the
// digest, unless the session's generation moved on in the meantime.
func (s *Session) runDigest(gen uint64, topic string, dateRange domain.DateRange) {
	ctx := s.runCtx
	runID := uuid.NewString()
	logger := observability.WithRunContext(s.logger, runID, topic)
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordRunStarted()
	}

	query := s.planner.BuildQuery(ctx, topic)
	digest, err := s.pipeline.Run(ctx, topic, query, dateRange)

	s.mu.Lock()
	stale := s.generation != gen
	if !stale {
		s.resetLocked()
		s.state = domain.StateIdle
	}
	s.mu.Unlock()

	if stale {
		logger.Info().Msg("discarding result of cancelled run")
		if s.metrics != nil {
			s.metrics.RecordRunDiscarded()
		}
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("digest run failed")
		if s.metrics != nil {
			s.metrics.RecordRunFailed(time.Since(start).Seconds())
		}
		s.send(ctx, msgRunFailed)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordRunCompleted(time.Since(start).Seconds())
	}
	for _, message := range FormatDigest(digest) {
		s.send(ctx, message)
	}
}

// resetLocked clears all conversation fields. Callers must hold the mutex.
func (s *Session) resetLocked() {
	s.state = domain.StateIdle
	s.topic = ""
	s.startDate = time.Time{}
	s.endDate = time.Time{}
	s.pendingAdminOp = domain.AdminOpNone
}

// send delivers one outbound message, logging delivery failures.
func (s *Session) send(ctx context.Context, text string) {
	if err := s.messenger.Send(ctx, s.chatID, text); err != nil {
		s.logger.Error().Err(err).Msg("failed to send message")
	}
}

// parseDate validates and parses a YYYY.MM.DD date string.
func parseDate(text string) (time.Time, error) {
	text = domain.NormalizeWhitespace(text)
	if !datePattern.MatchString(text) {
		return time.Time{}, domain.NewValidationError("date", "expected YYYY.MM.DD")
	}
	date, err := time.Parse(dateLayout, text)
	if err != nil {
		return time.Time{}, domain.NewValidationError("date", "not a valid calendar date")
	}
	return date, nil
}
