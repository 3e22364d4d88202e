package action

// OutcomeKind classifies what an action run produced.
type OutcomeKind string

const (
	// OutcomeSuccess means the action completed its work.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeFailure means the action ran and could not do its work.
	OutcomeFailure OutcomeKind = "failure"
	// OutcomeConfirm means the action needs an explicit user go-ahead
	// before it will perform its effect.
	OutcomeConfirm OutcomeKind = "confirm"
)

// Outcome is everything an action wants to happen to the conversation.
// The executor translates it into session events; handlers stay free of
// session mutation and event bookkeeping.
type Outcome struct {
	Kind OutcomeKind
	// SlotUpdates are written through the action path on commit.
	SlotUpdates map[string]any
	// Message is uttered to the user, when non-empty.
	Message string
	// EndSession disables the session after this action.
	EndSession bool
	// Restart resets the session to a fresh state after this action.
	Restart bool
	// FailureReason describes a failure for logs and history.
	FailureReason string
	// Retryable marks a failure worth re-running, such as a timeout on
	// an external call.
	Retryable bool
}

// Success returns a plain success outcome.
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Say returns a success outcome uttering msg.
func Say(msg string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Message: msg}
}

// Fill returns a success outcome writing the given slots.
func Fill(updates map[string]any) Outcome {
	return Outcome{Kind: OutcomeSuccess, SlotUpdates: updates}
}

// Fail returns a failure outcome with the given reason.
func Fail(reason string) Outcome {
	return Outcome{Kind: OutcomeFailure, FailureReason: reason}
}

// FailRetryable returns a retryable failure outcome.
func FailRetryable(reason string) Outcome {
	return Outcome{Kind: OutcomeFailure, FailureReason: reason, Retryable: true}
}

// Confirm returns an outcome asking the user for a go-ahead with msg.
func Confirm(msg string) Outcome {
	return Outcome{Kind: OutcomeConfirm, Message: msg}
}
