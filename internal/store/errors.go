package store

import "errors"

// Domain errors surfaced by the store. Handlers map these onto HTTP statuses;
// the dispatcher and services branch on them explicitly.
var (
	// ErrNotFound means the referenced conversation, agent or chatbot does not
	// exist or is not visible to the caller's client scope.
	ErrNotFound = errors.New("not found")

	// ErrValidation means a required field is missing or malformed.
	// No side effect has been performed.
	ErrValidation = errors.New("validation failed")

	// ErrConversationEnded means the conversation is terminal and no state
	// transition may be applied to it.
	ErrConversationEnded = errors.New("conversation ended")

	// ErrAlreadyAssigned means an accept lost the race: another agent already
	// owns the conversation.
	ErrAlreadyAssigned = errors.New("conversation already assigned")

	// ErrNotAssigned means the conversation is not assigned to the acting agent.
	ErrNotAssigned = errors.New("conversation not assigned to agent")
)
