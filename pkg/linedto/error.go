package linedto

// Stable error codes sent to clients.
const (
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeNotAMember       = "not_a_member"
	CodeNotYourTurn      = "not_your_turn"
	CodeGameNotActive    = "game_not_active"
	CodeGamePaused       = "game_paused"
	CodeDuplicateMove    = "duplicate_move"
	CodeIllegalMove      = "illegal_move"
	CodeAlreadyQueued    = "already_queued"
	CodeAlreadyInSession = "already_in_session"
	CodeUnknownPlayer    = "unknown_player"
	CodeInternal         = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "session server error"
}
