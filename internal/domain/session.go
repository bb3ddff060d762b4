package domain

// SessionState is one state of the per-user conversational state machine.
type SessionState int

const (
	// StateIdle is the initial state; only /start (and admin commands) are
	// meaningful here.
	StateIdle SessionState = iota

	// StateAwaitingTopic means the bot asked for a research topic.
	StateAwaitingTopic

	// StateAwaitingStartDate means the bot asked for the start of the date window.
	StateAwaitingStartDate

	// StateAwaitingEndDate means the bot asked for the end of the date window.
	StateAwaitingEndDate

	// StateProcessing means a pipeline run is in flight for this user.
	StateProcessing
)

// String returns the state name for logging.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingTopic:
		return "awaiting_topic"
	case StateAwaitingStartDate:
		return "awaiting_start_date"
	case StateAwaitingEndDate:
		return "awaiting_end_date"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// AdminOp is a pending admin operation awaiting a target user id.
type AdminOp int

const (
	// AdminOpNone means no admin operation is pending.
	AdminOpNone AdminOp = iota

	// AdminOpAdd means the next text message is the user id to add.
	AdminOpAdd

	// AdminOpRemove means the next text message is the user id to remove.
	AdminOpRemove
)

// String returns the operation name for logging.
func (op AdminOp) String() string {
	switch op {
	case AdminOpAdd:
		return "add"
	case AdminOpRemove:
		return "remove"
	default:
		return "none"
	}
}
